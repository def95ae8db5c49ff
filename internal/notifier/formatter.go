package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"RhizaCore/internal/model"
	"RhizaCore/internal/session"
)

// FormatEarnings renders one live session's earnings.
func FormatEarnings(info session.Info) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💰 <b>%s</b>\n", html.EscapeString(displayName(info.Username, info.Wallet))))
	b.WriteString(fmt.Sprintf("Earnings: %.6f TON\n", info.Earnings))
	b.WriteString(fmt.Sprintf("Balance: %.2f TON\n", info.Balance))
	b.WriteString(fmt.Sprintf("Rate: %.9f TON/s\n", info.Rate))
	state := "visible"
	if info.Hidden {
		state = "hidden"
	}
	b.WriteString(fmt.Sprintf("Phase: %s (%s)", info.Phase, state))
	return b.String()
}

// FormatStoredEarnings renders earnings for a user without a live session.
func FormatStoredEarnings(user *model.User, earnings float64, lastUpdate time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("💰 <b>%s</b> (offline)\n", html.EscapeString(displayName(user.Username, user.WalletAddress))))
	b.WriteString(fmt.Sprintf("Earnings: %.6f TON\n", earnings))
	b.WriteString(fmt.Sprintf("Balance: %.2f TON\n", user.Balance))
	if !lastUpdate.IsZero() {
		b.WriteString(fmt.Sprintf("Last sync: %s", lastUpdate.UTC().Format("2006-01-02 15:04")))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSessionList renders the active sessions.
func FormatSessionList(infos []session.Info) string {
	if len(infos) == 0 {
		return "No active sessions."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("👥 <b>Active sessions</b> (%d)\n\n", len(infos)))
	for _, info := range infos {
		marker := "🟢"
		if info.Hidden {
			marker = "⚪"
		}
		b.WriteString(fmt.Sprintf("%s %d %s: %.6f TON\n", marker, info.UserID,
			html.EscapeString(displayName(info.Username, info.Wallet)), info.Earnings))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatDailyReport summarises live sessions and funded accounts.
func FormatDailyReport(now time.Time, infos []session.Info, users []model.User) string {
	var live, balance, earned float64
	for _, info := range infos {
		live += info.Earnings
	}
	for _, u := range users {
		balance += u.Balance
		earned += u.TotalEarned
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>RhizaCore daily report</b> | %s\n\n", now.UTC().Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Active sessions: %d\n", len(infos)))
	b.WriteString(fmt.Sprintf("Live earnings: %.6f TON\n", live))
	b.WriteString(fmt.Sprintf("Funded accounts: %d\n", len(users)))
	b.WriteString(fmt.Sprintf("Total balance: %.2f TON\n", balance))
	b.WriteString(fmt.Sprintf("Total earned (synced): %.6f TON", earned))
	return b.String()
}

// FormatHelp lists the bot commands.
func FormatHelp() string {
	return "Available commands:\n" +
		"/earnings &lt;wallet&gt; - earnings for a wallet\n" +
		"/sessions - active sessions\n" +
		"/help - this message"
}

func displayName(username, wallet string) string {
	if username != "" {
		return "@" + username
	}
	return shortWallet(wallet)
}

func shortWallet(w string) string {
	if len(w) <= 12 {
		return w
	}
	return w[:6] + "…" + w[len(w)-4:]
}
