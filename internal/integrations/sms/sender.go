package sms

import "context"

type Message struct {
	To   string
	Body string
}

type Sender interface {
	// Send возвращает id сообщения у провайдера.
	Send(ctx context.Context, msg Message) (string, error)
}
