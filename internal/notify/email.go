package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"

	"lookup_engine/internal/logbus"
	"lookup_engine/internal/model"
	"lookup_engine/internal/store/sqlite"
)

// EmailNotifier 异步发送运行汇总邮件。邮件配置存在 sqlite 里，
// 每次发送前读取，改配置不用重启。
type EmailNotifier struct {
	store *sqlite.Store
	bus   *logbus.Bus

	mu     sync.Mutex
	queue  chan RunSummary
	ctx    context.Context
	cancel func()
	wg     sync.WaitGroup
}

func NewEmailNotifier(store *sqlite.Store, bus *logbus.Bus) *EmailNotifier {
	ctx, cancel := context.WithCancel(context.Background())
	n := &EmailNotifier{
		store:  store,
		bus:    bus,
		queue:  make(chan RunSummary, 16),
		ctx:    ctx,
		cancel: cancel,
	}
	n.wg.Add(1)
	go n.loop()
	return n
}

func (n *EmailNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *EmailNotifier) NotifyRunFinished(_ context.Context, summary RunSummary) {
	select {
	case n.queue <- summary:
	default:
		if n.bus != nil {
			n.bus.Log("warn", "邮件通知丢弃：队列已满", map[string]any{
				"total":  summary.Total,
				"halted": summary.Halted,
			})
		}
	}
}

func (n *EmailNotifier) loop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		case summary := <-n.queue:
			n.handle(summary)
		}
	}
}

func (n *EmailNotifier) handle(summary RunSummary) {
	if n.store == nil {
		return
	}

	settings, ok, err := n.store.GetEmailSettings(n.ctx)
	if err != nil {
		if n.bus != nil {
			n.bus.Log("warn", "读取邮件配置失败", map[string]any{"error": err.Error()})
		}
		return
	}
	if !ok || !settings.Enabled {
		return
	}
	if err := validateEmailSettings(settings); err != nil {
		if n.bus != nil {
			n.bus.Log("warn", "邮件配置无效", map[string]any{"error": err.Error()})
		}
		return
	}

	if err := SendRunSummaryEmail(n.ctx, settings, summary); err != nil {
		if n.bus != nil {
			n.bus.Log("warn", "邮件发送失败", map[string]any{"error": err.Error()})
		}
		return
	}
	if n.bus != nil {
		n.bus.Log("info", "通知邮件已发送", map[string]any{
			"to":     strings.TrimSpace(settings.Email),
			"halted": summary.Halted,
		})
	}
}

func validateEmailSettings(s model.EmailSettings) error {
	email := strings.TrimSpace(s.Email)
	if email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return errors.New("invalid email")
	}
	if strings.TrimSpace(s.AuthCode) == "" {
		return errors.New("authCode is required")
	}
	return nil
}

func SendRunSummaryEmail(ctx context.Context, settings model.EmailSettings, summary RunSummary) error {
	if err := validateEmailSettings(settings); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	email := strings.TrimSpace(settings.Email)
	host, port, useSSL, err := smtpConfigForEmail(email)
	if err != nil {
		return err
	}
	subject := buildSummarySubject(summary)
	htmlBody, textBody, err := buildSummaryBody(summary)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(email, "查号助手"))
	msg.SetHeader("To", email)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", textBody)
	msg.AddAlternative("text/html", htmlBody)

	d := gomail.NewDialer(host, port, email, strings.TrimSpace(settings.AuthCode))
	d.SSL = useSSL
	return d.DialAndSend(msg)
}

func smtpConfigForEmail(email string) (host string, port int, useSSL bool, err error) {
	parts := strings.Split(strings.TrimSpace(email), "@")
	if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
		return "", 0, false, errors.New("invalid email format")
	}
	domain := strings.ToLower(strings.TrimSpace(parts[1]))

	switch {
	case domain == "qq.com" || strings.HasSuffix(domain, ".qq.com") || domain == "foxmail.com" || strings.HasSuffix(domain, ".foxmail.com"):
		return "smtp.qq.com", 465, true, nil
	case domain == "163.com" || strings.HasSuffix(domain, ".163.com") ||
		domain == "126.com" || strings.HasSuffix(domain, ".126.com"):
		return "smtp.163.com", 465, true, nil
	case domain == "gmail.com" || strings.HasSuffix(domain, ".gmail.com"):
		return "smtp.gmail.com", 587, false, nil
	case domain == "outlook.com" || strings.HasSuffix(domain, ".outlook.com") ||
		domain == "hotmail.com" || strings.HasSuffix(domain, ".hotmail.com") ||
		domain == "live.com" || strings.HasSuffix(domain, ".live.com"):
		return "smtp.office365.com", 587, false, nil
	default:
		return "smtp." + domain, 465, true, nil
	}
}

func buildSummarySubject(summary RunSummary) string {
	if summary.Halted {
		return fmt.Sprintf("验证运行中止（未完成 %d）", summary.Unresolved)
	}
	return fmt.Sprintf("验证运行完成：已注册 %d / 未注册 %d / 失败 %d",
		summary.Found, summary.NotFound, summary.Exhausted)
}

var summaryHTMLTpl = template.Must(template.New("summary").Parse(`
<!doctype html>
<html lang="zh-CN">
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width" />
    <title>验证运行汇总</title>
  </head>
  <body style="font-family: -apple-system, 'PingFang SC', sans-serif; color: #222;">
    <h2 style="margin-bottom: 4px;">验证运行汇总</h2>
    <p style="color: #888; margin-top: 0;">{{.When}} · 用时 {{.Duration}}</p>
    <table cellpadding="6" style="border-collapse: collapse;">
      <tr><td>提交总数</td><td><b>{{.Total}}</b></td></tr>
      <tr><td>已注册</td><td><b>{{.Found}}</b></td></tr>
      <tr><td>未注册</td><td><b>{{.NotFound}}</b></td></tr>
      <tr><td>重试耗尽</td><td><b>{{.Exhausted}}</b></td></tr>
      <tr><td>未完成</td><td><b>{{.Unresolved}}</b></td></tr>
    </table>
    {{if .Halted}}<p style="color: #c00;">运行被中止：{{.HaltReason}}</p>{{end}}
  </body>
</html>
`))

func buildSummaryBody(summary RunSummary) (htmlBody string, textBody string, err error) {
	data := struct {
		RunSummary
		When     string
		Duration string
	}{
		RunSummary: summary,
		When:       time.UnixMilli(summary.At).Format("2006-01-02 15:04:05"),
		Duration:   (time.Duration(summary.DurationMs) * time.Millisecond).Round(time.Second).String(),
	}

	var buf bytes.Buffer
	if err := summaryHTMLTpl.Execute(&buf, data); err != nil {
		return "", "", err
	}

	text := fmt.Sprintf(
		"验证运行汇总（%s，用时 %s）\n提交总数：%d\n已注册：%d\n未注册：%d\n重试耗尽：%d\n未完成：%d\n",
		data.When, data.Duration, summary.Total, summary.Found, summary.NotFound, summary.Exhausted, summary.Unresolved,
	)
	if summary.Halted {
		text += "运行被中止：" + summary.HaltReason + "\n"
	}
	return buf.String(), text, nil
}
