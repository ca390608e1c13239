package utils

// validator.go - валидация данных
//
// Назначение:
// Проверка корректности входных данных: символов, спредов, объёмов,
// учётных данных бирж и конфигурации торговой пары. Возвращает error с
// описанием проблемы или nil.

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidSpread     = errors.New("spread must be in (0, 100]")
	ErrInvalidVolume     = errors.New("volume must be in (0, 1e9]")
	ErrInvalidNOrders    = errors.New("n_orders must be in [1, 100]")
	ErrInvalidStopLoss   = errors.New("stop_loss must be in (0, 100]")
	ErrInvalidLeverage   = errors.New("leverage must be in [1, 100]")
	ErrInvalidPercentage = errors.New("percentage must be in [0, 100]")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrInvalidAPIKey     = errors.New("api key must be 16-128 alphanumeric/-/_ characters")
	ErrInvalidAPISecret  = errors.New("api secret must be at least 16 characters")
	ErrInvalidPassphrase = errors.New("api passphrase must be at most 64 characters")
	ErrInvalidExchange   = errors.New("unsupported exchange")
)

var symbolPattern = regexp.MustCompile(`^[A-Za-z0-9_/-]{2,20}$`)
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
var apiKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)

// SupportedExchanges lists the venues this project has an adapter for.
var SupportedExchanges = []string{"bybit", "bitget", "okx", "gate", "htx", "bingx"}

// GetSupportedExchanges returns a copy of SupportedExchanges.
func GetSupportedExchanges() []string {
	out := make([]string, len(SupportedExchanges))
	copy(out, SupportedExchanges)
	return out
}

// ValidateSymbol checks that symbol looks like a trading pair ticker:
// 2-20 alphanumeric characters optionally joined by -, _, or /.
func ValidateSymbol(symbol string) error {
	if !symbolPattern.MatchString(symbol) {
		return ErrInvalidSymbol
	}
	return nil
}

// IsValidSymbol is the boolean form of ValidateSymbol.
func IsValidSymbol(symbol string) bool { return ValidateSymbol(symbol) == nil }

var symbolSeparators = strings.NewReplacer("-", "", "_", "", "/", "")

// NormalizeSymbol upper-cases symbol and strips any -, _, / separators.
func NormalizeSymbol(symbol string) string {
	return symbolSeparators.Replace(strings.ToUpper(symbol))
}

// knownQuoteCurrencies is checked longest-first when a symbol has no
// separator to split on (e.g. "ETHBTC", "BTCUSDT").
var knownQuoteCurrencies = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH", "BNB"}

func splitSymbol(symbol string) (base, quote string) {
	norm := strings.ToUpper(symbol)
	for _, sep := range []string{"-", "_", "/"} {
		if idx := strings.Index(norm, sep); idx > 0 {
			return norm[:idx], norm[idx+len(sep):]
		}
	}
	for _, q := range knownQuoteCurrencies {
		if strings.HasSuffix(norm, q) && len(norm) > len(q) {
			return strings.TrimSuffix(norm, q), q
		}
	}
	return norm, ""
}

// ExtractBaseCurrency returns the base currency of a trading symbol, e.g.
// "BTC-USDT" or "btcusdt" -> "BTC".
func ExtractBaseCurrency(symbol string) string {
	base, _ := splitSymbol(symbol)
	return base
}

// ExtractQuoteCurrency returns the quote currency of a trading symbol,
// e.g. "BTC-USDT" or "btcusdt" -> "USDT".
func ExtractQuoteCurrency(symbol string) string {
	_, quote := splitSymbol(symbol)
	return quote
}

// ValidateSpread checks a spread percentage is in (0, 100].
func ValidateSpread(spreadPct float64) error {
	if spreadPct <= 0 || spreadPct > 100 {
		return ErrInvalidSpread
	}
	return nil
}

// ValidateVolume checks a volume is in (0, 1e9].
func ValidateVolume(volume float64) error {
	if volume <= 0 || volume > 1e9 {
		return ErrInvalidVolume
	}
	return nil
}

// ValidateNOrders checks an order-split count is in [1, 100].
func ValidateNOrders(n int) error {
	if n < 1 || n > 100 {
		return ErrInvalidNOrders
	}
	return nil
}

// ValidateStopLoss checks a stop-loss percentage is in (0, 100].
func ValidateStopLoss(sl float64) error {
	if sl <= 0 || sl > 100 {
		return ErrInvalidStopLoss
	}
	return nil
}

// ValidateLeverage checks a leverage multiple is in [1, 100].
func ValidateLeverage(leverage int) error {
	if leverage < 1 || leverage > 100 {
		return ErrInvalidLeverage
	}
	return nil
}

// ValidatePercentage checks a value is in [0, 100].
func ValidatePercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return ErrInvalidPercentage
	}
	return nil
}

// ValidateEmail checks email looks like user@domain.tld.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) || strings.Count(email, "@") != 1 {
		return ErrInvalidEmail
	}
	return nil
}

// IsValidEmail is the boolean form of ValidateEmail.
func IsValidEmail(email string) bool { return ValidateEmail(email) == nil }

// ValidateAPIKey checks an exchange API key is 16-128 chars of
// letters/digits/-/_.
func ValidateAPIKey(key string) error {
	if !apiKeyPattern.MatchString(key) {
		return ErrInvalidAPIKey
	}
	return nil
}

// IsValidAPIKey is the boolean form of ValidateAPIKey.
func IsValidAPIKey(key string) bool { return ValidateAPIKey(key) == nil }

// ValidateAPISecret checks an exchange API secret is at least 16 chars.
// Unlike ValidateAPIKey it does not restrict charset, since secrets
// commonly contain symbols.
func ValidateAPISecret(secret string) error {
	if len(secret) < 16 {
		return ErrInvalidAPISecret
	}
	return nil
}

// ValidateAPIPassphrase checks an optional exchange passphrase (used by
// e.g. OKX) does not exceed 64 characters. An empty passphrase is valid:
// most venues don't require one.
func ValidateAPIPassphrase(passphrase string) error {
	if len(passphrase) > 64 {
		return ErrInvalidPassphrase
	}
	return nil
}

// ValidateExchange checks exchange (case-insensitively) is one of
// SupportedExchanges.
func ValidateExchange(exchange string) error {
	norm := NormalizeExchange(exchange)
	for _, e := range SupportedExchanges {
		if norm == e {
			return nil
		}
	}
	return ErrInvalidExchange
}

// IsValidExchange is the boolean form of ValidateExchange.
func IsValidExchange(exchange string) bool { return ValidateExchange(exchange) == nil }

// NormalizeExchange lower-cases and trims an exchange id.
func NormalizeExchange(exchange string) string {
	return strings.ToLower(strings.TrimSpace(exchange))
}

// PairConfigValidation holds the fields of a configured arbitrage pair
// that need cross-field validation beyond their individual ranges.
type PairConfigValidation struct {
	Symbol      string
	EntrySpread float64
	ExitSpread  float64
	Volume      float64
	NOrders     int
	StopLoss    float64
	ExchangeA   string
	ExchangeB   string
}

// ValidatePairConfig validates every field of cfg plus the cross-field
// invariants: entry spread must exceed exit spread, and (when both
// exchanges are given) they must differ.
func ValidatePairConfig(cfg PairConfigValidation) error {
	if err := ValidateSymbol(cfg.Symbol); err != nil {
		return err
	}
	if err := ValidateSpread(cfg.EntrySpread); err != nil {
		return fmt.Errorf("entry_spread: %w", err)
	}
	if err := ValidateSpread(cfg.ExitSpread); err != nil {
		return fmt.Errorf("exit_spread: %w", err)
	}
	if err := ValidateVolume(cfg.Volume); err != nil {
		return err
	}
	if err := ValidateNOrders(cfg.NOrders); err != nil {
		return err
	}
	if cfg.StopLoss != 0 {
		if err := ValidateStopLoss(cfg.StopLoss); err != nil {
			return err
		}
	}
	if cfg.ExchangeA != "" || cfg.ExchangeB != "" {
		if err := ValidateExchange(cfg.ExchangeA); err != nil {
			return fmt.Errorf("exchange_a: %w", err)
		}
		if err := ValidateExchange(cfg.ExchangeB); err != nil {
			return fmt.Errorf("exchange_b: %w", err)
		}
		if NormalizeExchange(cfg.ExchangeA) == NormalizeExchange(cfg.ExchangeB) {
			return errors.New("exchange_a and exchange_b must differ")
		}
	}
	if cfg.EntrySpread <= cfg.ExitSpread {
		return errors.New("entry_spread must exceed exit_spread")
	}
	return nil
}

// ValidationErrors accumulates independent field validation failures,
// e.g. when validating an API request body where every bad field should
// be reported at once rather than failing fast.
type ValidationErrors []ValidationError

// ValidationError is one field/message pair inside a ValidationErrors.
type ValidationError struct {
	Field   string
	Message string
}

// Add appends a field/message pair.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// AddError appends err's message under field, unless err is nil.
func (e *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	e.Add(field, err.Error())
}

// HasErrors reports whether any error was accumulated.
func (e ValidationErrors) HasErrors() bool { return len(e) > 0 }

// Error joins every accumulated field/message pair into one string.
func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = fmt.Sprintf("%s: %s", v.Field, v.Message)
	}
	return strings.Join(parts, "; ")
}
