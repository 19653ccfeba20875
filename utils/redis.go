package utils

// BlacklistKey - ключ redis для отозванного токена
func BlacklistKey(token string) string {
	return "blacklist:" + token
}
