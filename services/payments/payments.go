// Package payments stores a user's payment methods. Card numbers are sealed
// with relay_exchange before they are written; only the brand, the last four
// digits and a keyed fingerprint stay readable. Each user has at most one
// default method, and the first method added becomes it.
package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/jacksonzamorano/relay"
	relay_db "github.com/jacksonzamorano/relay/relay-db"
	relay_exchange "github.com/jacksonzamorano/relay/relay-exchange"
	"github.com/sirupsen/logrus"
)

const Collection = "payment_methods"

// CreateRequest is the body of POST /payment-methods.
type CreateRequest struct {
	Number   string `json:"number" validate:"required,credit_card"`
	ExpMonth int    `json:"exp_month" validate:"required,gte=1,lte=12"`
	ExpYear  int    `json:"exp_year" validate:"required,gte=2000,lte=2100"`
	Holder   string `json:"holder" validate:"required,max=100"`
}

// PaymentMethod is the public view of a stored card.
type PaymentMethod struct {
	ID        string    `json:"id"`
	Brand     string    `json:"brand"`
	Last4     string    `json:"last4"`
	ExpMonth  int       `json:"exp_month"`
	ExpYear   int       `json:"exp_year"`
	Holder    string    `json:"holder"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

type methodDocument struct {
	UserID      string `json:"user_id"`
	Brand       string `json:"brand"`
	Last4       string `json:"last4"`
	ExpMonth    int    `json:"exp_month"`
	ExpYear     int    `json:"exp_year"`
	Holder      string `json:"holder"`
	Fingerprint string `json:"fingerprint"`
	Sealed      string `json:"sealed_number"`
	IsDefault   bool   `json:"is_default"`
}

type cardSecret struct {
	Number string `json:"number"`
}

func toMethod(rec relay_db.Record[methodDocument]) PaymentMethod {
	return PaymentMethod{
		ID:        rec.ID,
		Brand:     rec.Value.Brand,
		Last4:     rec.Value.Last4,
		ExpMonth:  rec.Value.ExpMonth,
		ExpYear:   rec.Value.ExpYear,
		Holder:    rec.Value.Holder,
		IsDefault: rec.Value.IsDefault,
		CreatedAt: rec.CreatedAt,
	}
}

type Service struct {
	methods *relay_db.Collection[methodDocument]
	sealer  *relay_exchange.Sealer
	key     []byte
	log     *logrus.Logger
	now     func() time.Time
}

// NewService creates the service. key is used for card fingerprints and
// should be the same key the sealer was built from.
func NewService(store relay_db.Store, sealer *relay_exchange.Sealer, key []byte, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		methods: relay_db.NewCollection[methodDocument](store, Collection),
		sealer:  sealer,
		key:     key,
		log:     logger,
		now:     time.Now,
	}
}

// Setup creates the collection. A user cannot store the same card twice.
func (s *Service) Setup(ctx context.Context, store relay_db.Store) error {
	return store.EnsureCollection(ctx, Collection, "user_id,fingerprint")
}

func normalizeNumber(number string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return -1
		}
		return r
	}, number)
}

// Brand names the card network from the number's prefix.
func Brand(number string) string {
	switch {
	case strings.HasPrefix(number, "4"):
		return "visa"
	case hasPrefixRange(number, 2, 51, 55), hasPrefixRange(number, 4, 2221, 2720):
		return "mastercard"
	case strings.HasPrefix(number, "34"), strings.HasPrefix(number, "37"):
		return "amex"
	case strings.HasPrefix(number, "6011"), strings.HasPrefix(number, "65"):
		return "discover"
	}
	return "unknown"
}

func hasPrefixRange(number string, digits int, low int, high int) bool {
	if len(number) < digits {
		return false
	}
	n := 0
	for _, c := range number[:digits] {
		if c < '0' || c > '9' {
			return false
		}
		n = n*10 + int(c-'0')
	}
	return n >= low && n <= high
}

func (s *Service) fingerprint(number string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(number))
	return hex.EncodeToString(mac.Sum(nil))
}

// expired reports whether a card is past the end of its expiry month.
func expired(month int, year int, now time.Time) bool {
	y, m := now.Year(), int(now.Month())
	return year < y || (year == y && month < m)
}

func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (PaymentMethod, error) {
	if expired(req.ExpMonth, req.ExpYear, s.now()) {
		return PaymentMethod{}, relay.ValidationFailure("Card has expired", nil)
	}
	number := normalizeNumber(req.Number)
	sealed, err := s.sealer.Seal(cardSecret{Number: number})
	if err != nil {
		return PaymentMethod{}, relay.InternalFailure(err)
	}
	existing, err := s.methods.FindMany(ctx, s.methods.Find().WhereEq("user_id", userID).Limit(1))
	if err != nil {
		return PaymentMethod{}, err
	}
	rec, err := s.methods.Insert(ctx, "", methodDocument{
		UserID:      userID,
		Brand:       Brand(number),
		Last4:       number[len(number)-4:],
		ExpMonth:    req.ExpMonth,
		ExpYear:     req.ExpYear,
		Holder:      strings.TrimSpace(req.Holder),
		Fingerprint: s.fingerprint(number),
		Sealed:      sealed,
		IsDefault:   len(existing) == 0,
	})
	if errors.Is(err, relay_db.ErrConflict) {
		return PaymentMethod{}, relay.ConflictFailure("Payment method already added")
	}
	if err != nil {
		return PaymentMethod{}, err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "payment_method_id": rec.ID}).Info("payment method added")
	return toMethod(rec), nil
}

// List returns the user's methods, oldest first.
func (s *Service) List(ctx context.Context, userID string) ([]PaymentMethod, error) {
	recs, err := s.methods.FindMany(ctx, s.methods.Find().WhereEq("user_id", userID).SortAsc(relay_db.FieldCreatedAt))
	if err != nil {
		return nil, err
	}
	methods := make([]PaymentMethod, len(recs))
	for i, rec := range recs {
		methods[i] = toMethod(rec)
	}
	return methods, nil
}

// owned loads a method and hides ones that belong to someone else.
func (s *Service) owned(ctx context.Context, userID string, id string) (relay_db.Record[methodDocument], error) {
	rec, err := s.methods.Get(ctx, id)
	if err != nil {
		return rec, err
	}
	if rec.Value.UserID != userID {
		return rec, relay_db.NotFoundError(Collection)
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, userID string, id string) (PaymentMethod, error) {
	rec, err := s.owned(ctx, userID, id)
	if err != nil {
		return PaymentMethod{}, err
	}
	return toMethod(rec), nil
}

// SetDefault makes id the user's default and clears the flag elsewhere.
func (s *Service) SetDefault(ctx context.Context, userID string, id string) (PaymentMethod, error) {
	rec, err := s.owned(ctx, userID, id)
	if err != nil {
		return PaymentMethod{}, err
	}
	defaults, err := s.methods.FindMany(ctx, s.methods.Find().
		WhereEq("user_id", userID).
		WhereEq("is_default", true))
	if err != nil {
		return PaymentMethod{}, err
	}
	for _, other := range defaults {
		if other.ID == id {
			continue
		}
		other.Value.IsDefault = false
		if _, err := s.methods.Replace(ctx, other.ID, other.Value); err != nil {
			return PaymentMethod{}, err
		}
	}
	if rec.Value.IsDefault {
		return toMethod(rec), nil
	}
	rec.Value.IsDefault = true
	updated, err := s.methods.Replace(ctx, id, rec.Value)
	if err != nil {
		return PaymentMethod{}, err
	}
	return toMethod(updated), nil
}

// Delete removes a method. When it was the default, the oldest remaining
// method takes over.
func (s *Service) Delete(ctx context.Context, userID string, id string) error {
	rec, err := s.owned(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.methods.Delete(ctx, id); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "payment_method_id": id}).Info("payment method removed")
	if !rec.Value.IsDefault {
		return nil
	}
	oldest, err := s.methods.FindOne(ctx, s.methods.Find().
		WhereEq("user_id", userID).
		SortAsc(relay_db.FieldCreatedAt))
	if errors.Is(err, relay_db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	oldest.Value.IsDefault = true
	_, err = s.methods.Replace(ctx, oldest.ID, oldest.Value)
	return err
}

// RevealNumber opens the sealed card number, for handing to a payment
// processor. It is never exposed over HTTP.
func (s *Service) RevealNumber(ctx context.Context, userID string, id string) (string, error) {
	rec, err := s.owned(ctx, userID, id)
	if err != nil {
		return "", err
	}
	secret, err := relay_exchange.Open[cardSecret](s.sealer, rec.Value.Sealed)
	if err != nil {
		return "", relay.InternalFailure(err)
	}
	return secret.Number, nil
}
