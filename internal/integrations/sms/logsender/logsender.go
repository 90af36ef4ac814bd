package logsender

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/BearBump/ShipNotify/internal/integrations/sms"
)

// Sender только пишет SMS в лог (sms_mode: log), для локального запуска и стендов.
type Sender struct {
	seq atomic.Int64
}

func New() *Sender { return &Sender{} }

func (s *Sender) Send(ctx context.Context, msg sms.Message) (string, error) {
	id := fmt.Sprintf("log-%d", s.seq.Add(1))
	slog.InfoContext(ctx, "sms (dry-run)", "id", id, "to", msg.To, "body", msg.Body)
	return id, nil
}
