package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CanSendVerification: не чаще 1 письма в минуту и 10 в час на адрес
func CanSendVerification(ctx context.Context, rdb *redis.Client, email string) (bool, string) {
	if rdb == nil {
		return true, ""
	}
	minuteKey := fmt.Sprintf("verify_minute_%s", email)
	hourKey := fmt.Sprintf("verify_hour_%s", email)
	if rdb.Exists(ctx, minuteKey).Val() > 0 {
		return false, "Можно отправлять не чаще 1 раза в 60 секунд"
	}
	cnt, _ := rdb.Get(ctx, hourKey).Int()
	if cnt >= 10 {
		return false, "Можно отправлять не более 10 раз в час"
	}
	return true, ""
}

func MarkVerificationSent(ctx context.Context, rdb *redis.Client, email string) {
	if rdb == nil {
		return
	}
	minuteKey := fmt.Sprintf("verify_minute_%s", email)
	hourKey := fmt.Sprintf("verify_hour_%s", email)
	rdb.Set(ctx, minuteKey, 1, 60*time.Second)
	rdb.Incr(ctx, hourKey)
	rdb.Expire(ctx, hourKey, time.Hour)
}
