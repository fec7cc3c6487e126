package board

import (
	"time"

	"message-board/board/domain"
	rldomain "message-board/ratelimit/domain"
)

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type postMessageRequest struct {
	Body string `json:"body"`
}

type userResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	CreatedAt  time.Time  `json:"createdAt"`
	PostCount  int        `json:"postCount"`
	LastPostAt *time.Time `json:"lastPostAt"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Body      string    `json:"body"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"createdAt"`
	Previous  *string   `json:"previous"`
	Next      *string   `json:"next"`
}

type rateLimitResponse struct {
	Allowed      bool      `json:"allowed"`
	CurrentCount int64     `json:"currentCount"`
	Remaining    int64     `json:"remaining"`
	ResetTime    time.Time `json:"resetTime"`
	Limit        int64     `json:"limit"`
	WindowMs     int64     `json:"windowMs"`
}

type postMessageResponse struct {
	Success   bool              `json:"success"`
	Message   *messageResponse  `json:"message,omitempty"`
	RateLimit rateLimitResponse `json:"rateLimit"`
	Error     *errorBody        `json:"error,omitempty"`
}

type messagesResponse struct {
	Items []messageResponse `json:"items"`
}

type errorBody struct {
	Kind      string     `json:"kind"`
	Message   string     `json:"message"`
	Field     string     `json:"field,omitempty"`
	ResetTime *time.Time `json:"resetTime,omitempty"`
	Remaining *int64     `json:"remaining,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Name:       u.Name,
		Email:      u.Email,
		CreatedAt:  u.CreatedAt,
		PostCount:  u.PostCount,
		LastPostAt: u.LastPostAt,
	}
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{
		ID:        m.ID,
		Body:      m.Body,
		Owner:     m.Owner,
		CreatedAt: m.CreatedAt,
		Previous:  m.Previous,
		Next:      m.Next,
	}
}

func toRateLimitResponse(info rldomain.Info) rateLimitResponse {
	return rateLimitResponse{
		Allowed:      info.Allowed,
		CurrentCount: info.CurrentCount,
		Remaining:    info.Remaining,
		ResetTime:    info.ResetTime,
		Limit:        info.Limit,
		WindowMs:     info.Window.Milliseconds(),
	}
}

func toErrorBody(e *domain.Error) errorBody {
	body := errorBody{Kind: e.Kind.String(), Message: e.Message, Field: e.Field}
	if e.Kind == domain.KindRateLimited {
		reset, remaining := e.ResetTime, e.Remaining
		body.ResetTime = &reset
		body.Remaining = &remaining
	}
	return body
}
