package ratelimit

import (
	"math"
	"net/http"
	"time"

	"message-board/ratelimit/domain"
)

const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderWindow     = "X-RateLimit-Window"
	HeaderRetryAfter = "Retry-After"
)

// SetHeaders escreve o estado do limite na resposta.
// Reset vai em epoch seconds e Window em segundos.
// Retry-After só é escrito quando a decisão bloqueou.
func SetHeaders(h http.Header, info domain.Info, now time.Time) {
	h.Set(HeaderLimit, formatInt64(info.Limit))
	h.Set(HeaderRemaining, formatInt64(info.Remaining))
	h.Set(HeaderReset, formatInt64(info.ResetTime.Unix()))
	h.Set(HeaderWindow, formatFloat(info.Window.Seconds()))

	if !info.Allowed {
		h.Set(HeaderRetryAfter, formatInt64(int64(RetryAfter(info, now).Seconds())))
	}
}

// RetryAfter arredonda para cima até o próximo segundo, com mínimo de 1s.
func RetryAfter(info domain.Info, now time.Time) time.Duration {
	d := info.ResetTime.Sub(now)
	secs := math.Ceil(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
