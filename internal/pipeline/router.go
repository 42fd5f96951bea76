package pipeline

import (
	"strings"

	"golang.org/x/exp/slices"

	"github.com/itteamcrypto-ai/x-scraper/internal/notify"
)

// alertCategories route to the high-priority channel. Matching is on the
// normalized form: lower case, separators collapsed to single spaces.
var alertCategories = []string{
	"airdrop",
	"launch alert",
	"presale",
	"contract alert",
	"listing",
	"price alert",
	"scam warning",
	"giveaway",
	"signal",
	"pnl sharing",
}

// ChannelFor selects the notification channel for a classified category.
func ChannelFor(category string) notify.Channel {
	if slices.Contains(alertCategories, normalizeCategory(category)) {
		return notify.ChannelAlerts
	}
	return notify.ChannelGeneral
}

func normalizeCategory(category string) string {
	s := strings.ToLower(strings.TrimSpace(category))
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	return strings.Join(strings.Fields(s), " ")
}
