package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	alertMaxLen      = 3500
	alertMaxVal      = 600
	alertSendTimeout = 10 * time.Second
)

type alert struct {
	chatID   int64
	threadID int
	text     string
}

// alertState is guarded by Service.mu.
type alertState struct {
	chatID   int64
	threadID int
	min      zerolog.Level
	limiter  *rate.Limiter
}

func (s *Service) startAlerts() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-s.queue:
				sctx, cancel := context.WithTimeout(ctx, alertSendTimeout)
				_ = s.sender.SendText(sctx, a.chatID, a.threadID, a.text)
				cancel()
			}
		}
	}()
}

// alertWriter is the zerolog sink that queues alerts without blocking.
type alertWriter struct{ svc *Service }

func (w alertWriter) Write(p []byte) (int, error) { return w.WriteLevel(zerolog.InfoLevel, p) }

func (w alertWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	w.svc.mu.Lock()
	st := w.svc.alert
	w.svc.mu.Unlock()

	if st.chatID == 0 || level < st.min || !st.limiter.Allow() {
		return len(p), nil
	}
	if text := formatAlert(p); text != "" {
		select {
		case w.svc.queue <- alert{chatID: st.chatID, threadID: st.threadID, text: text}:
		default:
		}
	}
	return len(p), nil
}

// formatAlert turns one JSON record into "[LEVEL] message" followed by one
// "- key=value" line per field, sorted by key. Time is omitted.
func formatAlert(p []byte) string {
	var rec map[string]any
	if err := json.Unmarshal(p, &rec); err != nil {
		return clip(strings.TrimSpace(string(p)), alertMaxLen)
	}

	var b strings.Builder
	if lvl, _ := rec[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := rec[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName:
		default:
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(rec[k]), alertMaxVal))
	}
	return clip(b.String(), alertMaxLen)
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
