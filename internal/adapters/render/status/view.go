package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/bnema/cloudwhisper/internal/application"
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type RenderOptions struct {
	// Now enables the "checked ... ago" footer.
	Now time.Time
}

func renderView(status application.Status, opts RenderOptions, s styles) string {
	lines := []string{
		s.title.Render("Cloud Inventory Status"),
		s.header.Render(fmt.Sprintf("accounts: %d", len(status.Accounts))),
		renderSummary(status, s),
	}

	lines = append(lines, s.section.Render(renderCurrent(status, s)))
	lines = append(lines, s.section.Render(renderAccounts(status, s)))
	if footer := checkedFooter(status.CheckedAt, opts.Now); footer != "" {
		lines = append(lines, s.section.Render(s.empty.Render(footer)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderSummary(status application.Status, s styles) string {
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.key.Render("broker:"),
		" ",
		workerLabel(status.Worker, s),
		"  ",
		s.key.Render("provider:"),
		" ",
		s.detail.Render(orNone(string(status.Provider))),
		"  ",
		s.key.Render("analysis:"),
		" ",
		s.detail.Render(orNone(status.Backend)),
	)
}

func renderCurrent(status application.Status, s styles) string {
	if status.Error != "" {
		return s.warning.Render("broker error: " + status.Error)
	}

	info := status.Current
	if info.AccountID == "" {
		return s.empty.Render("No active account.")
	}

	parts := []string{
		s.account.Render(accountTitle(info.AccountName, info.AccountID)),
		s.detail.Render("region: " + orNone(info.Region)),
	}
	if info.ProviderAccountID != "" {
		parts = append(parts, s.detail.Render("provider account: "+info.ProviderAccountID))
	}
	if info.UserARN != "" {
		parts = append(parts, s.detail.Render("identity: "+info.UserARN))
	}
	if info.Verified {
		parts = append(parts, s.ok.Render("credentials verified"))
	} else {
		reason := "credentials not verified"
		if info.Error != "" {
			reason += ": " + info.Error
		}
		parts = append(parts, s.degraded.Render(reason))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderAccounts(status application.Status, s styles) string {
	if len(status.Accounts) == 0 {
		return s.empty.Render("No accounts configured.")
	}

	lines := make([]string, 0, len(status.Accounts)+1)
	lines = append(lines, s.title.Render("Accounts"))
	for _, entry := range status.Accounts {
		marker := "  "
		if entry.ID == status.Current.AccountID {
			marker = s.marker.Render("* ")
		}

		line := marker + s.detail.Render(fmt.Sprintf("%s  %s", accountTitle(entry.Name, entry.ID), entry.Region))
		if desc := strings.TrimSpace(entry.Description); desc != "" {
			line += " " + s.empty.Render("- "+desc)
		}
		lines = append(lines, line)
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func workerLabel(state domain.WorkerState, s styles) string {
	switch state {
	case domain.WorkerReady:
		return s.ok.Render(state.String())
	case domain.WorkerFailed:
		return s.warning.Render(state.String())
	case "":
		return s.empty.Render("none")
	default:
		return s.degraded.Render(state.String())
	}
}

func checkedFooter(checkedAt, now time.Time) string {
	if checkedAt.IsZero() {
		return ""
	}
	if now.IsZero() || now.Before(checkedAt) {
		return "checked at " + checkedAt.Format("15:04:05")
	}

	return fmt.Sprintf("checked %s ago", now.Sub(checkedAt).Round(time.Second))
}

func accountTitle(name string, id domain.AccountID) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == string(id) {
		return string(id)
	}

	return fmt.Sprintf("%s (%s)", trimmed, id)
}

func orNone(v string) string {
	if strings.TrimSpace(v) == "" {
		return "none"
	}

	return v
}
