package actuator

import (
	"context"
	"encoding/hex"

	"github.com/sirupsen/logrus"

	"github.com/sailmode/sail/pkg/smc"
)

// Strategy is one independent hardware surface for inhibiting charge.
// Machines differ in which surfaces they honor: newer generations use
// CHTE, older ones CH0B/CH0I, and some only respect the BCLM cap. The
// actuator runs every strategy and any single success counts, so the
// caller never needs to know which generation it is on.
type Strategy interface {
	Name() string
	Apply(ctx context.Context, r Runner, inhibit bool, limit int) error
}

// defaultStrategies is the fixed priority order. New hardware
// generations are supported by appending here.
func defaultStrategies() []Strategy {
	return []Strategy{
		chteStrategy{},
		ch0bStrategy{},
		bclmStrategy{},
	}
}

func writeKey(ctx context.Context, r Runner, key string, value []byte) error {
	_, err := r.Run(ctx, "-k", key, "-w", hex.EncodeToString(value))
	return err
}

// chteStrategy drives the charge-inhibit register on newer machines.
type chteStrategy struct{}

func (chteStrategy) Name() string { return "chte" }

func (chteStrategy) Apply(ctx context.Context, r Runner, inhibit bool, _ int) error {
	v, err := smc.InhibitValue(smc.ChargeInhibitKey, inhibit)
	if err != nil {
		return err
	}
	return writeKey(ctx, r, smc.ChargeInhibitKey, v)
}

// ch0bStrategy drives the legacy charging toggle pair. CH0B is the one
// that matters; CH0I mirrors it on some boards and is best-effort.
type ch0bStrategy struct{}

func (ch0bStrategy) Name() string { return "ch0b" }

func (ch0bStrategy) Apply(ctx context.Context, r Runner, inhibit bool, _ int) error {
	v, err := smc.InhibitValue(smc.LegacyChargingKey, inhibit)
	if err != nil {
		return err
	}
	if err := writeKey(ctx, r, smc.LegacyChargingKey, v); err != nil {
		return err
	}

	v, err = smc.InhibitValue(smc.LegacyAdapterKey, inhibit)
	if err != nil {
		return err
	}
	if err := writeKey(ctx, r, smc.LegacyAdapterKey, v); err != nil {
		logrus.WithError(err).Debug("secondary legacy toggle write failed; continuing")
	}
	return nil
}

// bclmStrategy abuses the firmware charge-limit cap as an inhibit: when
// inhibiting, pin the cap to the configured limit so the firmware stops
// accepting charge at the level the battery is already at; when
// allowing, raise the cap back to 100.
type bclmStrategy struct{}

func (bclmStrategy) Name() string { return "bclm" }

func (bclmStrategy) Apply(ctx context.Context, r Runner, inhibit bool, limit int) error {
	pct := 100
	if inhibit {
		pct = limit
	}
	return writeKey(ctx, r, smc.ChargeLimitKey, smc.LimitValue(pct))
}
