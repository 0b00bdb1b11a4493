package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/tmachen/shopfloor/internal/core/domain"
	"github.com/tmachen/shopfloor/internal/port"
)

// Configuration keys understood by the engine. Values are strings in the
// external store; assembly times are whole seconds.
const (
	KeyBinMin           = "BinMin"
	KeyAssemblyStations = "AssemblyStations"
	KeyOrderAmount      = "OrderAmount"
	KeyTimeScale        = "TimeScale"

	KeyRookieAssemblyTime      = "RookieAssemblyTime"
	KeyRookieDefectRate        = "RookieDefectRate"
	KeyExperiencedAssemblyTime = "ExperiencedAssemblyTime"
	KeyExperiencedDefectRate   = "ExperiencedDefectRate"
	KeySuperAssemblyTime       = "SuperAssemblyTime"
	KeySuperDefectRate         = "SuperDefectRate"
)

// Settings is the engine configuration resolved once at startup.
type Settings struct {
	BinMin           int // low-stock threshold
	AssemblyStations int
	OrderAmount      int
	TimeScale        float64 // consumed by the simulation driver, not the engine
	SkillDefaults    map[domain.SkillLevel]domain.SkillParams
}

// DefaultSettings are the built-in values used for keys absent from the
// configuration store.
func DefaultSettings() Settings {
	return Settings{
		BinMin:           5,
		AssemblyStations: 8,
		OrderAmount:      40,
		TimeScale:        1.0,
		SkillDefaults: map[domain.SkillLevel]domain.SkillParams{
			domain.SkillRookie:      {AssemblyTime: 100 * time.Second, DefectRate: 0.0085},
			domain.SkillExperienced: {AssemblyTime: 60 * time.Second, DefectRate: 0.003},
			domain.SkillSuper:       {AssemblyTime: 30 * time.Second, DefectRate: 0.001},
		},
	}
}

// LoadSettings resolves every configuration key against src, falling back
// to DefaultSettings for missing keys. A present but unparseable value is
// an error, not a silent fallback.
func LoadSettings(ctx context.Context, src port.ConfigSource) (Settings, error) {
	s := DefaultSettings()

	if err := lookupInt(ctx, src, KeyBinMin, &s.BinMin); err != nil {
		return Settings{}, err
	}
	if err := lookupInt(ctx, src, KeyAssemblyStations, &s.AssemblyStations); err != nil {
		return Settings{}, err
	}
	if err := lookupInt(ctx, src, KeyOrderAmount, &s.OrderAmount); err != nil {
		return Settings{}, err
	}
	if err := lookupFloat(ctx, src, KeyTimeScale, &s.TimeScale); err != nil {
		return Settings{}, err
	}

	skills := []struct {
		level   domain.SkillLevel
		timeKey string
		rateKey string
	}{
		{domain.SkillRookie, KeyRookieAssemblyTime, KeyRookieDefectRate},
		{domain.SkillExperienced, KeyExperiencedAssemblyTime, KeyExperiencedDefectRate},
		{domain.SkillSuper, KeySuperAssemblyTime, KeySuperDefectRate},
	}
	for _, sk := range skills {
		p := s.SkillDefaults[sk.level]
		var secs int
		if err := lookupInt(ctx, src, sk.timeKey, &secs); err != nil {
			return Settings{}, err
		}
		if secs > 0 {
			p.AssemblyTime = time.Duration(secs) * time.Second
		}
		if err := lookupFloat(ctx, src, sk.rateKey, &p.DefectRate); err != nil {
			return Settings{}, err
		}
		s.SkillDefaults[sk.level] = p
	}

	return s, nil
}

func lookupInt(ctx context.Context, src port.ConfigSource, key string, dst *int) error {
	raw, ok, err := src.Lookup(ctx, key)
	if err != nil {
		return fmt.Errorf("config lookup %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("config value %s=%q: %w", key, raw, err)
	}
	*dst = v
	return nil
}

func lookupFloat(ctx context.Context, src port.ConfigSource, key string, dst *float64) error {
	raw, ok, err := src.Lookup(ctx, key)
	if err != nil {
		return fmt.Errorf("config lookup %s: %w", key, err)
	}
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("config value %s=%q: %w", key, raw, err)
	}
	*dst = v
	return nil
}
