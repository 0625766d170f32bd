package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLogger struct {
	mu     sync.Mutex
	warns  int
	errors int
	infos  []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, fields[0]["text"].(string))
}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	m.warns++
	m.mu.Unlock()
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

type mockSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *mockSender) Send(c tgbot.Chattable) (tgbot.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return tgbot.Message{}, m.err
	}
	m.sent = append(m.sent, c.(tgbot.MessageConfig).Text)
	return tgbot.Message{}, nil
}

func (m *mockSender) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func TestNotifier_SendsInOrder(t *testing.T) {
	bot := &mockSender{}
	n := newNotifier(bot, 42, 8, &mockLogger{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	n.Notify(ctx, "strategy 1 started")
	n.Notify(ctx, "strategy 1 completed")
	assert.Eventually(t, func() bool { return len(bot.texts()) == 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, []string{"strategy 1 started", "strategy 1 completed"}, bot.texts())
}

func TestNotifier_DropsWhenFullWithoutBlocking(t *testing.T) {
	logger := &mockLogger{}
	n := newNotifier(&mockSender{}, 42, 1, logger)

	n.Notify(context.Background(), "a")
	n.Notify(context.Background(), "b")
	assert.Equal(t, 1, logger.warns)
}

func TestNotifier_FlushesOnShutdownAndLogsFailures(t *testing.T) {
	logger := &mockLogger{}
	bot := &mockSender{err: errors.New("telegram: 429 too many requests")}
	n := newNotifier(bot, 42, 4, logger)
	n.Notify(context.Background(), "a")
	n.Notify(context.Background(), "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Run(ctx)
	assert.Equal(t, 2, logger.errors)
}

func TestNew_RequiresTokenAndChat(t *testing.T) {
	_, err := New("", 0, 0, &mockLogger{})
	require.Error(t, err)
}

func TestLogNotifier(t *testing.T) {
	logger := &mockLogger{}
	LogNotifier{Logger: logger}.Notify(context.Background(), "hello")
	assert.Equal(t, []string{"hello"}, logger.infos)
}
