package enums

import (
	"fmt"
	"strings"
)

// ChannelKind identifies which adapter implementation serves a sales channel.
// The sales channel name doubles as its kind.
type ChannelKind string

const (
	ChannelShopify      ChannelKind = "shopify"
	ChannelMercadoLibre ChannelKind = "mercadolibre"
	ChannelAmazon       ChannelKind = "amazon"
	ChannelShein        ChannelKind = "shein"
)

var validChannelKinds = []ChannelKind{
	ChannelShopify,
	ChannelMercadoLibre,
	ChannelAmazon,
	ChannelShein,
}

func (k ChannelKind) String() string {
	return string(k)
}

func (k ChannelKind) IsValid() bool {
	for _, candidate := range validChannelKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseChannelKind converts a channel name into a ChannelKind. Matching is case-insensitive.
func ParseChannelKind(value string) (ChannelKind, error) {
	normalized := ChannelKind(strings.ToLower(strings.TrimSpace(value)))
	if normalized.IsValid() {
		return normalized, nil
	}
	return "", fmt.Errorf("unsupported channel %q", value)
}
