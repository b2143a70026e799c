package payments

import (
	"testing"

	"github.com/byronwade/Thorbis-sub040/models"
)

func TestPickConfigFiltersByChannel(t *testing.T) {
	configs := []models.CompanyProcessorConfig{
		{ProcessorType: TypeFortisPay, Channels: "online,card_present,tap_to_pay"},
		{ProcessorType: TypeAchBridge, Channels: "ach"},
	}

	chosen, ok := pickConfig(configs, ChannelAch)
	if !ok {
		t.Fatal("expected an ach candidate")
	}
	if chosen.ProcessorType != TypeAchBridge {
		t.Fatalf("expected achbridge for ach channel, got %s", chosen.ProcessorType)
	}

	if _, ok := pickConfig(configs[:1], ChannelAch); ok {
		t.Fatal("expected no candidate when no config carries the channel")
	}
}

func TestPickConfigPrefersPrimary(t *testing.T) {
	configs := []models.CompanyProcessorConfig{
		{ProcessorType: TypeFortisPay, Channels: "online", Priority: 0},
		{ProcessorType: TypeNuvaPay, Channels: "online", PrimaryFor: "online", Priority: 5},
	}

	chosen, ok := pickConfig(configs, ChannelOnline)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if chosen.ProcessorType != TypeNuvaPay {
		t.Fatalf("expected the primary config to win, got %s", chosen.ProcessorType)
	}
}

func TestPickConfigFallsBackToOrdering(t *testing.T) {
	// ListProcessorConfigs returns lowest priority first; without a primary
	// the first candidate wins.
	configs := []models.CompanyProcessorConfig{
		{ProcessorType: TypeFortisPay, Channels: "online", Priority: 0},
		{ProcessorType: TypeNuvaPay, Channels: "online", Priority: 1},
	}

	chosen, ok := pickConfig(configs, ChannelOnline)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if chosen.ProcessorType != TypeFortisPay {
		t.Fatalf("expected first-ordered config to win, got %s", chosen.ProcessorType)
	}
}
