package analytics

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidThresholds = errors.New("invalid thresholds")

// Thresholds tune the classifier and the ranking floor. Fractions are in [0,1];
// SalesDropCritical is a negative fraction (-0.20 is a 20% drop).
type Thresholds struct {
	MinVolume                int     `json:"min_volume" yaml:"min_volume" validate:"gte=0"`
	DisqualificationWarning  float64 `json:"disqualification_warning" yaml:"disqualification_warning" validate:"gte=0,lte=1"`
	DisqualificationCritical float64 `json:"disqualification_critical" yaml:"disqualification_critical" validate:"gte=0,lte=1,gtefield=DisqualificationWarning"`
	NoShowWarning            float64 `json:"noshow_warning" yaml:"noshow_warning" validate:"gte=0,lte=1"`
	SalesDropCritical        float64 `json:"sales_drop_critical" yaml:"sales_drop_critical" validate:"gte=-1,lte=0"`
	UntrackedShare           float64 `json:"untracked_share" yaml:"untracked_share" validate:"gte=0,lte=1"`
	LowConversionCeiling     float64 `json:"low_conversion_ceiling" yaml:"low_conversion_ceiling" validate:"gte=0,lte=1"`

	// Period-over-period disqualification increase, in rate points, and the
	// current rate it must reach.
	DisqualificationRise      float64 `json:"disqualification_rise" yaml:"disqualification_rise" validate:"gte=0,lte=1"`
	DisqualificationRiseFloor float64 `json:"disqualification_rise_floor" yaml:"disqualification_rise_floor" validate:"gte=0,lte=1"`
	NoSalesMinRealized        int     `json:"no_sales_min_realized" yaml:"no_sales_min_realized" validate:"gte=1"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinVolume:                10,
		DisqualificationWarning:  0.40,
		DisqualificationCritical: 0.60,
		NoShowWarning:            0.30,
		SalesDropCritical:        -0.20,
		UntrackedShare:           0.10,
		LowConversionCeiling:     0.05,

		DisqualificationRise:      0.15,
		DisqualificationRiseFloor: 0.30,
		NoSalesMinRealized:        5,
	}
}

// ThresholdOverrides carries a partial threshold set; nil fields keep the default.
type ThresholdOverrides struct {
	MinVolume                *int     `json:"min_volume,omitempty" yaml:"min_volume"`
	DisqualificationWarning  *float64 `json:"disqualification_warning,omitempty" yaml:"disqualification_warning"`
	DisqualificationCritical *float64 `json:"disqualification_critical,omitempty" yaml:"disqualification_critical"`
	NoShowWarning            *float64 `json:"noshow_warning,omitempty" yaml:"noshow_warning"`
	SalesDropCritical        *float64 `json:"sales_drop_critical,omitempty" yaml:"sales_drop_critical"`
	UntrackedShare           *float64 `json:"untracked_share,omitempty" yaml:"untracked_share"`
	LowConversionCeiling     *float64 `json:"low_conversion_ceiling,omitempty" yaml:"low_conversion_ceiling"`

	DisqualificationRise      *float64 `json:"disqualification_rise,omitempty" yaml:"disqualification_rise"`
	DisqualificationRiseFloor *float64 `json:"disqualification_rise_floor,omitempty" yaml:"disqualification_rise_floor"`
	NoSalesMinRealized        *int     `json:"no_sales_min_realized,omitempty" yaml:"no_sales_min_realized"`
}

// Apply returns base with every non-nil override set. base is not modified.
func (o ThresholdOverrides) Apply(base Thresholds) Thresholds {
	if o.MinVolume != nil {
		base.MinVolume = *o.MinVolume
	}
	if o.DisqualificationWarning != nil {
		base.DisqualificationWarning = *o.DisqualificationWarning
	}
	if o.DisqualificationCritical != nil {
		base.DisqualificationCritical = *o.DisqualificationCritical
	}
	if o.NoShowWarning != nil {
		base.NoShowWarning = *o.NoShowWarning
	}
	if o.SalesDropCritical != nil {
		base.SalesDropCritical = *o.SalesDropCritical
	}
	if o.UntrackedShare != nil {
		base.UntrackedShare = *o.UntrackedShare
	}
	if o.LowConversionCeiling != nil {
		base.LowConversionCeiling = *o.LowConversionCeiling
	}
	if o.DisqualificationRise != nil {
		base.DisqualificationRise = *o.DisqualificationRise
	}
	if o.DisqualificationRiseFloor != nil {
		base.DisqualificationRiseFloor = *o.DisqualificationRiseFloor
	}
	if o.NoSalesMinRealized != nil {
		base.NoSalesMinRealized = *o.NoSalesMinRealized
	}
	return base
}

// NewThresholds applies o on top of the defaults and validates the result.
func NewThresholds(o ThresholdOverrides) (Thresholds, error) {
	t := o.Apply(DefaultThresholds())
	if err := t.Validate(); err != nil {
		return Thresholds{}, err
	}
	return t, nil
}

var validate = validator.New()

func (t Thresholds) Validate() error {
	err := validate.Struct(t)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidThresholds, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s=%v violates %s%s", fe.Field(), fe.Value(), fe.Tag(), paramSuffix(fe.Param())))
	}
	return fmt.Errorf("%w: %s", ErrInvalidThresholds, strings.Join(msgs, "; "))
}

func paramSuffix(p string) string {
	if p == "" {
		return ""
	}
	return "(" + p + ")"
}
