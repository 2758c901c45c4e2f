package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zentinel/zentinel/internal/api"
	"github.com/zentinel/zentinel/internal/database"
	"github.com/zentinel/zentinel/internal/models"
	"github.com/zentinel/zentinel/internal/utils"
)

// Profile keys of the dashboard filter
const (
	FilterKeyPrefix     = "web.zentinel.filter."
	FilterKeyGroupIDs   = FilterKeyPrefix + "groupids"
	FilterKeyHostIDs    = FilterKeyPrefix + "hostids"
	FilterKeyNonProdIDs = FilterKeyPrefix + "nonprodids"
	FilterKeyAck        = FilterKeyPrefix + "ack"
	FilterKeyAge        = FilterKeyPrefix + "age"
	FilterKeySeverities = FilterKeyPrefix + "severities"
	FilterKeySortField  = FilterKeyPrefix + "sortfield"
	FilterKeySortOrder  = FilterKeyPrefix + "sortorder"
	FilterKeyActive     = FilterKeyPrefix + "active"
)

// Acknowledge filter values
const (
	AckAny = -1
	AckNo  = 0
	AckYes = 1
)

// Sort fields and orders
const (
	SortByClock    = "clock"
	SortBySeverity = "severity"
	SortByHost     = "host"
	SortByName     = "name"

	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// FilterState is a user's persisted dashboard filter
type FilterState struct {
	GroupIDs        []string `json:"group_ids" validate:"dive,zbxid"`
	HostIDs         []string `json:"host_ids" validate:"dive,zbxid"`
	NonProdGroupIDs []string `json:"nonprod_group_ids" validate:"dive,zbxid"`
	Ack             int      `json:"ack" validate:"oneof=-1 0 1"`
	Age             string   `json:"age" validate:"timeunit"`
	Severities      []int    `json:"severities" validate:"dive,gte=0,lte=5"`
	SortField       string   `json:"sort_field" validate:"oneof=clock severity host name"`
	SortOrder       string   `json:"sort_order" validate:"oneof=ASC DESC"`
	// Active is the expanded state of the filter panel
	Active int `json:"active" validate:"oneof=0 1"`
}

// DefaultFilterState returns the filter used when nothing is stored
func DefaultFilterState() FilterState {
	return FilterState{
		GroupIDs:        []string{},
		HostIDs:         []string{},
		NonProdGroupIDs: []string{},
		Ack:             AckAny,
		Age:             "",
		Severities:      []int{},
		SortField:       SortByClock,
		SortOrder:       SortDesc,
		Active:          1,
	}
}

// UnmarshalJSON fills fields missing from the input with their defaults
func (f *FilterState) UnmarshalJSON(data []byte) error {
	type plain FilterState
	p := plain(DefaultFilterState())
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*f = FilterState(p)
	return nil
}

// AgeDuration returns the "older than" threshold, 0 when unset or invalid
func (f FilterState) AgeDuration() time.Duration {
	if f.Age == "" {
		return 0
	}
	d, err := utils.ParseTimeUnit(f.Age)
	if err != nil {
		return 0
	}
	return d
}

// AckFilter returns the acknowledged predicate, nil for "any"
func (f FilterState) AckFilter() *bool {
	if f.Ack == AckAny {
		return nil
	}
	v := f.Ack == AckYes
	return &v
}

// HasSeverity reports whether the severity is selected
func (f FilterState) HasSeverity(sev int) bool {
	for _, s := range f.Severities {
		if s == sev {
			return true
		}
	}
	return false
}

// Sanitize replaces invalid fields with their defaults. Invalid ids and
// severities are dropped from their lists. The returned map names every
// field that was changed.
func (f FilterState) Sanitize() (FilterState, map[string]string) {
	errs := api.Validate(f)
	if len(errs) == 0 {
		return f, nil
	}

	def := DefaultFilterState()
	fields := make(map[string]string, len(errs))
	for field, msg := range errs {
		name := field
		if i := strings.IndexByte(name, '['); i >= 0 {
			name = name[:i]
		}
		fields[name] = msg

		switch name {
		case "group_ids":
			f.GroupIDs = validIDs(f.GroupIDs)
		case "host_ids":
			f.HostIDs = validIDs(f.HostIDs)
		case "nonprod_group_ids":
			f.NonProdGroupIDs = validIDs(f.NonProdGroupIDs)
		case "severities":
			f.Severities = validSeverities(f.Severities)
		case "ack":
			f.Ack = def.Ack
		case "age":
			f.Age = def.Age
		case "sort_field":
			f.SortField = def.SortField
		case "sort_order":
			f.SortOrder = def.SortOrder
		case "active":
			f.Active = def.Active
		}
	}
	return f, fields
}

func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, err := strconv.ParseUint(id, 10, 64); err == nil && n > 0 {
			out = append(out, id)
		}
	}
	return out
}

func validSeverities(sevs []int) []int {
	out := make([]int, 0, len(sevs))
	for _, s := range sevs {
		if models.Severity(s).Valid() {
			out = append(out, s)
		}
	}
	return out
}

// FilterService reads and writes dashboard filters in the profile store
type FilterService struct {
	profiles       *database.ProfileStore
	defaultNonProd []string
}

// NewFilterService creates a filter service. defaultNonProd is used for
// users that never saved their own non-production groups.
func NewFilterService(profiles *database.ProfileStore, defaultNonProd []string) *FilterService {
	return &FilterService{
		profiles:       profiles,
		defaultNonProd: append([]string{}, defaultNonProd...),
	}
}

// Defaults returns the filter a user sees before saving anything
func (s *FilterService) Defaults() FilterState {
	f := DefaultFilterState()
	f.NonProdGroupIDs = append([]string{}, s.defaultNonProd...)
	return f
}

// Load reads the user's filter. Absent fields take their defaults and
// corrupted values are coerced.
func (s *FilterService) Load(ctx context.Context, username string) (FilterState, error) {
	def := s.Defaults()
	f := def
	var err error

	if f.GroupIDs, err = s.profiles.GetArray(ctx, username, FilterKeyGroupIDs, def.GroupIDs); err != nil {
		return def, err
	}
	if f.HostIDs, err = s.profiles.GetArray(ctx, username, FilterKeyHostIDs, def.HostIDs); err != nil {
		return def, err
	}
	if f.NonProdGroupIDs, err = s.profiles.GetArray(ctx, username, FilterKeyNonProdIDs, def.NonProdGroupIDs); err != nil {
		return def, err
	}
	if f.Ack, err = s.profiles.GetInt(ctx, username, FilterKeyAck, def.Ack); err != nil {
		return def, err
	}
	if f.Age, err = s.profiles.Get(ctx, username, FilterKeyAge, def.Age); err != nil {
		return def, err
	}
	sevs, err := s.profiles.GetArray(ctx, username, FilterKeySeverities, nil)
	if err != nil {
		return def, err
	}
	f.Severities = make([]int, 0, len(sevs))
	for _, v := range sevs {
		if n, convErr := strconv.Atoi(v); convErr == nil {
			f.Severities = append(f.Severities, n)
		}
	}
	if f.SortField, err = s.profiles.Get(ctx, username, FilterKeySortField, def.SortField); err != nil {
		return def, err
	}
	if f.SortOrder, err = s.profiles.Get(ctx, username, FilterKeySortOrder, def.SortOrder); err != nil {
		return def, err
	}
	if f.Active, err = s.profiles.GetInt(ctx, username, FilterKeyActive, def.Active); err != nil {
		return def, err
	}

	f, fixed := f.Sanitize()
	if len(fixed) > 0 {
		log.Printf("FilterService: Ignoring stored filter values for %s: %v", username, fixed)
	}
	return f, nil
}

// Save stores every field of the filter. Invalid fields are coerced to
// their defaults and logged, they never fail the save.
func (s *FilterService) Save(ctx context.Context, username string, f FilterState) (FilterState, error) {
	f, fixed := f.Sanitize()
	if len(fixed) > 0 {
		log.Printf("FilterService: Coerced invalid filter input from %s: %v", username, fixed)
	}

	sevs := make([]string, 0, len(f.Severities))
	sorted := append([]int(nil), f.Severities...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	for _, sev := range sorted {
		sevs = append(sevs, strconv.Itoa(sev))
	}

	err := s.profiles.Transaction(ctx, func(tx *database.ProfileStore) error {
		steps := []func() error{
			func() error {
				return tx.UpdateArray(ctx, username, FilterKeyGroupIDs, f.GroupIDs, database.ProfileTypeID)
			},
			func() error {
				return tx.UpdateArray(ctx, username, FilterKeyHostIDs, f.HostIDs, database.ProfileTypeID)
			},
			func() error {
				return tx.UpdateArray(ctx, username, FilterKeyNonProdIDs, f.NonProdGroupIDs, database.ProfileTypeID)
			},
			func() error {
				return tx.Update(ctx, username, FilterKeyAck, strconv.Itoa(f.Ack), database.ProfileTypeInt)
			},
			func() error {
				return tx.Update(ctx, username, FilterKeyAge, f.Age, database.ProfileTypeStr)
			},
			func() error {
				return tx.UpdateArray(ctx, username, FilterKeySeverities, sevs, database.ProfileTypeInt)
			},
			func() error {
				return tx.Update(ctx, username, FilterKeySortField, f.SortField, database.ProfileTypeStr)
			},
			func() error {
				return tx.Update(ctx, username, FilterKeySortOrder, f.SortOrder, database.ProfileTypeStr)
			},
			func() error {
				return tx.Update(ctx, username, FilterKeyActive, strconv.Itoa(f.Active), database.ProfileTypeInt)
			},
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return f, fmt.Errorf("failed to save filter: %w", err)
	}

	log.Printf("FilterService: Saved filter for %s", username)
	return f, nil
}

// SaveSort stores only the sort column and direction
func (s *FilterService) SaveSort(ctx context.Context, username, field, order string) error {
	f := DefaultFilterState()
	f.SortField = field
	f.SortOrder = strings.ToUpper(order)
	f, fixed := f.Sanitize()
	if len(fixed) > 0 {
		log.Printf("FilterService: Coerced invalid sort input from %s: %v", username, fixed)
	}

	err := s.profiles.Transaction(ctx, func(tx *database.ProfileStore) error {
		if err := tx.Update(ctx, username, FilterKeySortField, f.SortField, database.ProfileTypeStr); err != nil {
			return err
		}
		return tx.Update(ctx, username, FilterKeySortOrder, f.SortOrder, database.ProfileTypeStr)
	})
	if err != nil {
		return fmt.Errorf("failed to save sort: %w", err)
	}
	return nil
}

// Reset deletes every stored filter key of the user, including keys no
// longer part of FilterState
func (s *FilterService) Reset(ctx context.Context, username string) error {
	keys, err := s.profiles.Keys(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to reset filter: %w", err)
	}
	stale := make([]string, 0, len(keys))
	for _, key := range keys {
		if strings.HasPrefix(key, FilterKeyPrefix) {
			stale = append(stale, key)
		}
	}
	if err := s.profiles.Delete(ctx, username, stale...); err != nil {
		return fmt.Errorf("failed to reset filter: %w", err)
	}
	log.Printf("FilterService: Reset filter for %s", username)
	return nil
}
