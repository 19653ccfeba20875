package utils

import "time"

// TashkentLocation - часовой пояс Узбекистана (UTC+5, без летнего времени)
func TashkentLocation() *time.Location {
	loc, err := time.LoadLocation("Asia/Tashkent")
	if err != nil {
		return time.FixedZone("UZT", 5*60*60)
	}
	return loc
}

// MonthsSpanned - сколько календарных месяцев (по Ташкенту) затрагивает интервал, минимум 1
func MonthsSpanned(from, to time.Time) int {
	loc := TashkentLocation()
	from, to = from.In(loc), to.In(loc)
	if to.Before(from) {
		from, to = to, from
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month()) + 1
	if months < 1 {
		return 1
	}
	return months
}
