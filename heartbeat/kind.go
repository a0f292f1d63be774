package heartbeat

import (
	"strings"

	"codeberg.org/mutker/hbsc/internal/errors"
)

// Kind selects which optional quantities a heartbeat context tracks.
type Kind uint8

const (
	kindAccuracy Kind = 1 << iota
	kindEnergy
)

const (
	Base          Kind = 0
	Accuracy           = kindAccuracy
	Power              = kindEnergy
	AccuracyPower      = kindAccuracy | kindEnergy
)

// Kinds lists every valid kind in a stable order.
var Kinds = []Kind{Base, Accuracy, Power, AccuracyPower}

func (k Kind) TracksAccuracy() bool {
	return k&kindAccuracy != 0
}

func (k Kind) TracksEnergy() bool {
	return k&kindEnergy != 0
}

func (k Kind) Valid() bool {
	return k <= AccuracyPower
}

func (k Kind) String() string {
	switch k {
	case Base:
		return "base"
	case Accuracy:
		return "accuracy"
	case Power:
		return "power"
	case AccuracyPower:
		return "accuracy-power"
	}
	return "invalid"
}

// ParseKind accepts the names produced by String plus the short forms
// "acc", "pow" and "acc-pow".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base", "":
		return Base, nil
	case "accuracy", "acc":
		return Accuracy, nil
	case "power", "pow":
		return Power, nil
	case "accuracy-power", "acc-pow", "accuracy_power", "acc_pow":
		return AccuracyPower, nil
	}
	return Base, errors.New().WithData(ErrInvalidKind, s)
}
