package mailer

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// smtpSink is a minimal SMTP server that accepts one message per connection.
type smtpSink struct {
	ln   net.Listener
	mu   sync.Mutex
	from string
	rcpt string
	data string
}

func newSMTPSink(t *testing.T) *smtpSink {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &smtpSink{ln: ln}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *smtpSink) hostPort(t *testing.T) (string, int) {
	host, port, err := net.SplitHostPort(s.ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return host, p
}

func (s *smtpSink) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *smtpSink) handle(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	write := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	write("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			write("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			s.mu.Lock()
			s.from = line[len("MAIL FROM:"):]
			s.mu.Unlock()
			write("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.mu.Lock()
			s.rcpt = line[len("RCPT TO:"):]
			s.mu.Unlock()
			write("250 OK")
		case cmd == "DATA":
			write("354 end with .")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			write("250 queued")
		case cmd == "QUIT":
			write("221 bye")
			return
		default:
			write("502 not implemented")
		}
	}
}

func (s *smtpSink) snapshot() (from, rcpt, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.from, s.rcpt, s.data
}

func TestSend_DeliversMultipartMessage(t *testing.T) {
	sink := newSMTPSink(t)
	host, port := sink.hostPort(t)

	core, logs := observer.New(zap.InfoLevel)
	m := New(Config{Host: host, Port: port, From: "noreply@example.com", FromName: "SecureNotes", Timeout: 2 * time.Second}, zap.New(core))

	err := m.Send(context.Background(), Email{
		To:       "alice@example.com",
		Subject:  "Your verification code",
		TextBody: "code 123456",
		HTMLBody: "<p>code 123456</p>",
	})
	require.NoError(t, err)

	from, rcpt, data := sink.snapshot()
	assert.Equal(t, "<noreply@example.com>", from)
	assert.Equal(t, "<alice@example.com>", rcpt)
	assert.Contains(t, data, "From: SecureNotes <noreply@example.com>\r\n")
	assert.Contains(t, data, "Subject: Your verification code\r\n")
	assert.Contains(t, data, "multipart/alternative")
	assert.Contains(t, data, "code 123456")
	assert.Contains(t, data, "<p>code 123456</p>")

	assert.Equal(t, 1, logs.FilterMessage("email sent").Len())
}

func TestSend_TimesOutOnSilentServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// Accept but never greet.
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)

	m := New(Config{Host: host, Port: port, From: "noreply@example.com", Timeout: 200 * time.Millisecond}, zap.NewNop())

	start := time.Now()
	err = m.Send(context.Background(), Email{To: "a@example.com", Subject: "s", TextBody: "b"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestSend_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	ln.Close()

	m := New(Config{Host: host, Port: port, From: "noreply@example.com", Timeout: time.Second}, zap.NewNop())
	err = m.Send(context.Background(), Email{To: "a@example.com", Subject: "s", TextBody: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to send email")
}

func TestBuildMessage_RejectsHeaderInjection(t *testing.T) {
	cases := []Email{
		{To: "a@example.com\r\nBcc: evil@example.com", Subject: "s"},
		{To: "a@example.com", Subject: "hi\nBcc: evil@example.com"},
	}
	for _, e := range cases {
		_, err := buildMessage("noreply@example.com", e)
		assert.ErrorIs(t, err, ErrHeaderInjection)
	}
}

func TestBuildMessage_PlainText(t *testing.T) {
	msg, err := buildMessage("noreply@example.com", Email{To: "a@example.com", Subject: "s", TextBody: "hello"})
	require.NoError(t, err)
	s := string(msg)
	assert.Contains(t, s, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.NotContains(t, s, "multipart")
	assert.True(t, strings.HasSuffix(s, "hello"))
}

func TestLogMailer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	lm := NewLogMailer(zap.New(core))

	require.NoError(t, lm.Send(context.Background(), Email{To: "a@example.com", Subject: "s", TextBody: "123456"}))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "a@example.com", fields["to"])
	assert.Equal(t, "123456", fields["body"])

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, lm.Send(ctx, Email{To: "a@example.com"}))
}

func TestLoginCodeEmail(t *testing.T) {
	text, html, err := LoginCodeEmail(LoginCodeEmailData{AppName: "SecureNotes", Code: "042917", ExpiresIn: 5 * time.Minute})
	require.NoError(t, err)
	assert.Contains(t, text, "042917")
	assert.Contains(t, text, "5 minutes")
	assert.Contains(t, html, "042917")
	assert.Contains(t, html, "5 minutes")

	text, _, err = LoginCodeEmail(LoginCodeEmailData{AppName: "SecureNotes", Code: "000001", ExpiresIn: 30 * time.Second})
	require.NoError(t, err)
	assert.Contains(t, text, "1 minute.")
}
