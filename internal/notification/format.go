package notification

import (
	"fmt"
	"html"
	"strings"
	"time"

	"nifty-signals/internal/markethours"
	"nifty-signals/internal/model"
)

const (
	dateTimeLayout = "02/01/2006 15:04"
	clockLayout    = "15:04"
)

// FormatDigest renders one cycle's signals as a single message.
func FormatDigest(signals []model.Signal, now time.Time) string {
	if len(signals) == 0 {
		return "🔍 <b>Nifty 50 Analysis</b>\n\nNo significant signals detected."
	}

	var b strings.Builder
	b.WriteString("🚀 <b>Nifty 50 Technical Signals</b>\n\n")
	for _, s := range signals {
		fmt.Fprintf(&b, "%s <b>%s</b> - %s\n", typeEmoji(s.Type), esc(model.DisplaySymbol(s.Symbol)), rupees(s))
		fmt.Fprintf(&b, "%s %s (%s)\n", strengthEmoji(s.Strength), s.Type, s.Strength)
		fmt.Fprintf(&b, "📝 %s\n\n", esc(s.Description))
	}
	fmt.Fprintf(&b, "⏰ <i>Updated: %s IST</i>", now.In(markethours.IST).Format(dateTimeLayout))
	return b.String()
}

// FormatSignalList renders stored signals under title, one block per signal.
func FormatSignalList(title string, signals []model.Signal, now time.Time) string {
	if len(signals) == 0 {
		return fmt.Sprintf("🔍 <b>%s</b>\n\nNo signals found in the last 24 hours.", esc(title))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>%s</b>\n\n", esc(title))
	for _, s := range signals {
		fmt.Fprintf(&b, "%s <b>%s</b> - %s\n", typeEmoji(s.Type), esc(model.DisplaySymbol(s.Symbol)), rupees(s))
		fmt.Fprintf(&b, "%s <b>%s</b> (%s)\n", strengthEmoji(s.Strength), s.Type, s.Strength)
		fmt.Fprintf(&b, "📝 %s\n", esc(s.Description))
		fmt.Fprintf(&b, "⏰ %s\n\n", s.Timestamp.In(markethours.IST).Format(clockLayout))
	}
	fmt.Fprintf(&b, "🕐 <i>Last updated: %s IST</i>", now.In(markethours.IST).Format(clockLayout))
	return b.String()
}

// FormatTodaySummary renders today's counts followed by the most recent signals.
func FormatTodaySummary(counts map[model.SignalType]int, recent []model.Signal, now time.Time) string {
	buys, sells := counts[model.SignalBuy], counts[model.SignalSell]

	var b strings.Builder
	b.WriteString("📅 <b>Today's Signal Summary</b>\n\n")
	fmt.Fprintf(&b, "📈 <b>Buy Signals:</b> %d\n", buys)
	fmt.Fprintf(&b, "📉 <b>Sell Signals:</b> %d\n", sells)
	fmt.Fprintf(&b, "📊 <b>Total Signals:</b> %d\n", buys+sells)

	if len(recent) > 0 {
		b.WriteString("\n<b>Recent Signals:</b>")
		for _, s := range recent {
			fmt.Fprintf(&b, "\n%s %s - %s %s", typeEmoji(s.Type), esc(model.DisplaySymbol(s.Symbol)), s.Type, strengthEmoji(s.Strength))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n⏰ <i>Updated: %s IST</i>", now.In(markethours.IST).Format(dateTimeLayout))
	return b.String()
}

// Status is the data shown by the status command.
type Status struct {
	Now                  time.Time
	TodaySignals         int
	LastSignal           time.Time // zero when no signal was ever stored
	Interval             time.Duration
	UniverseSize         int
	NotificationsEnabled bool
	StoreOK              bool
}

// FormatStatus renders the bot status.
func FormatStatus(s Status) string {
	last := "Never"
	if !s.LastSignal.IsZero() {
		last = s.LastSignal.In(markethours.IST).Format(dateTimeLayout) + " IST"
	}

	var b strings.Builder
	b.WriteString("⚡ <b>Bot Status</b>\n\n")
	b.WriteString("🟢 <b>Status:</b> Online\n")
	fmt.Fprintf(&b, "📊 <b>Today's Signals:</b> %d\n", s.TodaySignals)
	fmt.Fprintf(&b, "🕐 <b>Last Update:</b> %s\n", last)
	fmt.Fprintf(&b, "🔄 <b>Analysis Frequency:</b> Every %s\n", humanDuration(s.Interval))
	fmt.Fprintf(&b, "📈 <b>Monitoring:</b> %d Nifty stocks\n", s.UniverseSize)
	fmt.Fprintf(&b, "🏛 <b>Market:</b> %s\n\n", esc(markethours.StatusString(s.Now)))
	b.WriteString("<b>System Info:</b>\n")
	fmt.Fprintf(&b, "• Database: %s\n", check(s.StoreOK, "Connected", "Unavailable"))
	fmt.Fprintf(&b, "• Notifications: %s\n", check(s.NotificationsEnabled, "Active", "Disabled"))
	b.WriteString("• Market Hours: 9:15 AM - 3:30 PM IST\n\n")
	b.WriteString("Use /signals to get latest analysis!")
	return b.String()
}

// HelpText lists the commands.
func HelpText() string {
	return `📋 <b>Bot Commands:</b>

🔍 <b>/signals</b> - Latest technical signals (24h)
📅 <b>/today</b> - Today's signals summary
📈 <b>/buy</b> - Only buy signals
📉 <b>/sell</b> - Only sell signals
🔬 <b>/analyze</b> - Run an analysis now
⚡ <b>/status</b> - Bot status

<b>Signal Strength:</b>
🟢 <b>STRONG</b> - High confidence signals
🟡 <b>MEDIUM</b> - Moderate confidence signals
🔵 <b>WEAK</b> - Low confidence signals

<b>Indicators Used:</b>
• RSI (14)
• Price vs SMA (20)
• Volume vs 10-day average

⚠️ <i>Disclaimer: These are technical analysis signals only. Please do your own research before trading.</i>`
}

// WelcomeText is the reply to /start.
func WelcomeText() string {
	return "🚀 <b>Welcome to the Nifty 50 Technical Analysis Bot!</b>\n\n" +
		"This bot scans Nifty 50 stocks and sends technical trading signals.\n\n" +
		HelpText()
}

func rupees(s model.Signal) string {
	return "₹" + s.Price.StringFixed(2)
}

func typeEmoji(t model.SignalType) string {
	if t == model.SignalBuy {
		return "📈"
	}
	return "📉"
}

func strengthEmoji(s model.Strength) string {
	switch s {
	case model.StrengthStrong:
		return "🟢"
	case model.StrengthMedium:
		return "🟡"
	case model.StrengthWeak:
		return "🔵"
	default:
		return "⚪"
	}
}

func check(ok bool, yes, no string) string {
	if ok {
		return "✅ " + yes
	}
	return "❌ " + no
}

func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "n/a"
	case d == time.Hour:
		return "1 hour"
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}

func esc(s string) string { return html.EscapeString(s) }
