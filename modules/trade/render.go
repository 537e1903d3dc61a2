package trade

import (
	"fmt"
	"strings"

	tradecore "ex-otogi-trade/internal/trade"
)

const (
	textNoValidItems      = "No valid item numbers provided."
	textWrongChannel      = "This command cannot be used in this channel."
	textManageChannelOnly = "This command can only be used in the list-management channel."
	textNoMember          = "Could not identify who sent this command."
	textEmptySection      = "None"
)

func itemIDs(items []tradecore.Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	return ids
}

func renderAddResult(result tradecore.AddResult) string {
	lines := make([]string, 0, 2)
	if len(result.Added) > 0 {
		lines = append(lines, "Added: "+strings.Join(itemIDs(result.Added), ", "))
	}
	if len(result.AlreadyPresent) > 0 {
		lines = append(lines, "Already in list: "+strings.Join(itemIDs(result.AlreadyPresent), ", "))
	}

	return strings.Join(lines, "\n")
}

func renderRemoveResult(result tradecore.RemoveResult) string {
	lines := make([]string, 0, 2)
	if len(result.Removed) > 0 {
		lines = append(lines, "Removed: "+strings.Join(itemIDs(result.Removed), ", "))
	}
	if len(result.NotFound) > 0 {
		lines = append(lines, "Not in your list: "+strings.Join(itemIDs(result.NotFound), ", "))
	}

	return strings.Join(lines, "\n")
}

// renderMemberList shows both lists in catalog order; retired items trail
// without an ordinal.
func renderMemberList(catalog *tradecore.Catalog, list tradecore.MemberList) string {
	return fmt.Sprintf(
		"Your wants:\n%s\n\nYour haves:\n%s",
		renderSection(catalog, list.Wants),
		renderSection(catalog, list.Haves),
	)
}

func renderSection(catalog *tradecore.Catalog, set tradecore.ItemSet) string {
	if len(set) == 0 {
		return textEmptySection
	}

	known := make([]string, 0, len(set))
	retired := make([]string, 0)
	for _, item := range catalog.Items() {
		if set.Has(item.ID) {
			known = append(known, fmt.Sprintf("%d. %s", item.Ordinal, item.ID))
		}
	}
	for _, id := range set.Sorted() {
		if _, ok := catalog.Lookup(id); !ok {
			retired = append(retired, id)
		}
	}

	return strings.Join(append(known, retired...), "\n")
}

func renderCatalog(catalog *tradecore.Catalog) string {
	lines := make([]string, 0, catalog.Count()+1)
	lines = append(lines, "Tradeable items:")
	for _, item := range catalog.Items() {
		lines = append(lines, fmt.Sprintf("%d. %s", item.Ordinal, item.ID))
	}

	return strings.Join(lines, "\n")
}

// renderMatchDM is the private notice for the member who receives gets and
// gives away gives.
func renderMatchDM(partner string, gets, gives []string) string {
	return fmt.Sprintf(
		"Match found!\nYou can get from %s: %s\nYou can give: %s",
		partner,
		strings.Join(gets, ", "),
		strings.Join(gives, ", "),
	)
}

func renderMatchAnnouncement(labelA, labelB string, aGets, bGets []string) string {
	return fmt.Sprintf(
		"New match! %s <-> %s\n%s can get: %s\n%s can get: %s",
		labelA, labelB,
		labelA, strings.Join(aGets, ", "),
		labelB, strings.Join(bGets, ", "),
	)
}

func renderGatingNotice(title string) string {
	if strings.TrimSpace(title) == "" {
		title = "this channel"
	}

	return fmt.Sprintf("Please only use commands in %s.", title)
}
