package config

import (
	"errors"
	"io/fs"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// FeePolicy holds the tunable parts of statement and payment processing.
type FeePolicy struct {
	MinAmountPercentage   decimal.Decimal `mapstructure:"-"`
	MinAmountPercent      string          `mapstructure:"minAmountPercentage"`
	MinAmountDueWindow    time.Duration   `mapstructure:"minAmountDueWindow"`
	PaymentTransactionTTL time.Duration   `mapstructure:"paymentTransactionTTL"`
	JournalVoucherBanks   []string        `mapstructure:"journalVoucherBanks"`
}

func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		MinAmountPercentage:   decimal.NewFromInt(35),
		MinAmountPercent:      "35",
		MinAmountDueWindow:    365 * 24 * time.Hour,
		PaymentTransactionTTL: 72 * time.Hour,
		JournalVoucherBanks:   []string{"BDO", "BPI", "METROBANK", "LANDBANK", "SECURITY BANK", "UNIONBANK"},
	}
}

// BankPrefix returns the configured bank whose name prefixes the description.
func (p FeePolicy) BankPrefix(description string) (string, bool) {
	normalized := slug.Make(description)
	for _, bank := range p.JournalVoucherBanks {
		key := slug.Make(bank)
		if key == "" {
			continue
		}
		if strings.HasPrefix(normalized, key) {
			return strings.ToUpper(strings.TrimSpace(bank)), true
		}
	}
	return "", false
}

// PolicyHolder serves the current FeePolicy and swaps it on file change.
type PolicyHolder struct {
	current atomic.Value // holds FeePolicy
}

// NewStaticPolicyHolder returns a holder that never reloads.
func NewStaticPolicyHolder(policy FeePolicy) *PolicyHolder {
	holder := &PolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func NewPolicyHolder(cfg Config, log *zap.Logger) (*PolicyHolder, error) {
	log = log.Named("config.policy")
	v := viper.New()

	if cfg.PolicyPath != "" {
		v.SetConfigFile(cfg.PolicyPath)
	} else {
		v.SetConfigName("registrar")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/registrar")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("REGISTRAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultFeePolicy()
	v.SetDefault("policy.minAmountPercentage", defaults.MinAmountPercent)
	v.SetDefault("policy.minAmountDueWindow", defaults.MinAmountDueWindow)
	v.SetDefault("policy.paymentTransactionTTL", defaults.PaymentTransactionTTL)
	v.SetDefault("policy.journalVoucherBanks", defaults.JournalVoucherBanks)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		fileLoaded = false
	}

	policy, err := readPolicy(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPolicyHolder(policy)
	if !fileLoaded {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := readPolicy(v)
		if err != nil {
			log.Warn("fee policy reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("fee policy reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *PolicyHolder) Get() FeePolicy {
	if h == nil {
		return DefaultFeePolicy()
	}
	return h.current.Load().(FeePolicy)
}

func readPolicy(v *viper.Viper) (FeePolicy, error) {
	var policy FeePolicy
	if err := v.UnmarshalKey("policy", &policy); err != nil {
		return FeePolicy{}, err
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(policy.MinAmountPercent))
	if err != nil {
		return FeePolicy{}, errors.New("policy.minAmountPercentage must be numeric")
	}
	policy.MinAmountPercentage = pct
	if err := validatePolicy(policy); err != nil {
		return FeePolicy{}, err
	}
	return policy, nil
}

func validatePolicy(policy FeePolicy) error {
	if policy.MinAmountPercentage.IsNegative() || policy.MinAmountPercentage.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("policy.minAmountPercentage must be within 0..100")
	}
	if policy.MinAmountDueWindow <= 0 {
		return errors.New("policy.minAmountDueWindow must be positive")
	}
	if policy.PaymentTransactionTTL <= 0 {
		return errors.New("policy.paymentTransactionTTL must be positive")
	}
	return nil
}
