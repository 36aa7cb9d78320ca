// Package redis keeps ingredient stock in Redis hashes. Quantities are held
// as integer micro-units so HINCRBY keeps them exact. Every script touches
// a single key, which keeps them valid on Redis Cluster.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"backoffice/pkg/stock"
)

// microExp is the number of decimal places a stored quantity keeps.
const microExp = 6

// KEYS[1] ingredient hash. ARGV[1] amount in micro-units, ARGV[2] negated
// amount, ARGV[3] timestamp.
var decrementScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'on_hand')
if not cur then
    return 0
end
if tonumber(cur) < tonumber(ARGV[1]) then
    return 0
end
redis.call('HINCRBY', KEYS[1], 'on_hand', ARGV[2])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[3])
return 1
`)

// KEYS[1] ingredient hash. ARGV[1] amount in micro-units, ARGV[2] timestamp.
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 0
end
redis.call('HINCRBY', KEYS[1], 'on_hand', ARGV[1])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[2])
return 1
`)

// KEYS[1] ingredient hash. ARGV field/value pairs.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
    return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// KEYS[1] ingredient hash. ARGV field/value pairs. Returns the previous
// company id, or false when the ingredient does not exist.
var updateScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[1], 'company_id')
if not old then
    return false
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return old
`)

// KEYS[1] ingredient hash. Returns the deleted ingredient's company id, or
// false when it did not exist.
var deleteScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[1], 'company_id')
if not old then
    return false
end
redis.call('DEL', KEYS[1])
return old
`)

func ingredientKey(id string) string { return "stock:ingredient:" + id }

func companyKey(companyID int64) string { return fmt.Sprintf("stock:company:%d", companyID) }

// Repository is a Redis-backed stock.Repository. The per-company id sets
// are maintained outside the scripts; List drops entries that no longer
// point at the company.
type Repository struct {
	client redis.UniversalClient
}

var _ stock.Repository = (*Repository)(nil)

// New wraps a connected client.
func New(client redis.UniversalClient) *Repository {
	return &Repository{client: client}
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// toMicro converts q to whole micro-units, refusing finer precision.
func toMicro(id string, q decimal.Decimal) (int64, error) {
	m := q.Shift(microExp)
	if !m.IsInteger() {
		return 0, errors.Errorf("quantity %s of %s has more than %d decimal places", q, id, microExp)
	}
	return m.IntPart(), nil
}

func fromMicro(v string) (decimal.Decimal, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(n, -microExp), nil
}

func fields(i stock.Ingredient) []any {
	return []any{
		"company_id", strconv.FormatInt(i.CompanyID, 10),
		"name", i.Name,
		"unit", i.Unit,
		"min_threshold", i.MinThreshold.String(),
		"updated_at", now(),
	}
}

func (r *Repository) Create(ctx context.Context, i stock.Ingredient) error {
	onHand, err := toMicro(i.ID, i.OnHand)
	if err != nil {
		return err
	}
	args := append(fields(i), "on_hand", strconv.FormatInt(onHand, 10), "created_at", now())
	ok, err := createScript.Run(ctx, r.client, []string{ingredientKey(i.ID)}, args...).Int()
	if err != nil {
		return errors.Wrap(err, "create ingredient")
	}
	if ok == 0 {
		return stock.ErrExists
	}
	return errors.Wrap(r.client.SAdd(ctx, companyKey(i.CompanyID), i.ID).Err(), "index ingredient")
}

func (r *Repository) Get(ctx context.Context, id string) (stock.Ingredient, error) {
	h, err := r.client.HGetAll(ctx, ingredientKey(id)).Result()
	if err != nil {
		return stock.Ingredient{}, errors.Wrap(err, "get ingredient")
	}
	if len(h) == 0 {
		return stock.Ingredient{}, stock.ErrNotFound
	}
	return decode(id, h)
}

func (r *Repository) List(ctx context.Context, companyID int64) ([]stock.Ingredient, error) {
	ids, err := r.client.SMembers(ctx, companyKey(companyID)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list ingredients")
	}
	sort.Strings(ids)

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for n, id := range ids {
		cmds[n] = pipe.HGetAll(ctx, ingredientKey(id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, errors.Wrap(err, "list ingredients")
		}
	}

	out := make([]stock.Ingredient, 0, len(ids))
	for n, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue
		}
		i, err := decode(ids[n], h)
		if err != nil {
			return nil, err
		}
		if i.CompanyID != companyID {
			continue
		}
		out = append(out, i)
	}
	return out, nil
}

// Update rewrites the descriptive fields and moves the id between company
// sets when the company changed.
func (r *Repository) Update(ctx context.Context, i stock.Ingredient) error {
	old, err := updateScript.Run(ctx, r.client, []string{ingredientKey(i.ID)}, fields(i)...).Text()
	if err == redis.Nil {
		return stock.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "update ingredient")
	}
	if old != strconv.FormatInt(i.CompanyID, 10) {
		if err := r.client.SRem(ctx, "stock:company:"+old, i.ID).Err(); err != nil {
			return errors.Wrap(err, "unindex ingredient")
		}
	}
	return errors.Wrap(r.client.SAdd(ctx, companyKey(i.CompanyID), i.ID).Err(), "index ingredient")
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	old, err := deleteScript.Run(ctx, r.client, []string{ingredientKey(id)}).Text()
	if err == redis.Nil {
		return stock.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "delete ingredient")
	}
	return errors.Wrap(r.client.SRem(ctx, "stock:company:"+old, id).Err(), "unindex ingredient")
}

func (r *Repository) ConditionalDecrement(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	m, err := toMicro(id, amount)
	if err != nil {
		return false, err
	}
	ok, err := decrementScript.Run(ctx, r.client, []string{ingredientKey(id)}, m, -m, now()).Int()
	if err != nil {
		return false, errors.Wrapf(err, "decrement ingredient %s", id)
	}
	return ok == 1, nil
}

func (r *Repository) Increment(ctx context.Context, id string, amount decimal.Decimal) error {
	m, err := toMicro(id, amount)
	if err != nil {
		return err
	}
	ok, err := incrementScript.Run(ctx, r.client, []string{ingredientKey(id)}, m, now()).Int()
	if err != nil {
		return errors.Wrapf(err, "increment ingredient %s", id)
	}
	if ok == 0 {
		return stock.ErrNotFound
	}
	return nil
}

func (r *Repository) ReadQuantity(ctx context.Context, id string) (decimal.Decimal, error) {
	v, err := r.client.HGet(ctx, ingredientKey(id), "on_hand").Result()
	if err == redis.Nil {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "read ingredient %s", id)
	}
	q, err := fromMicro(v)
	return q, errors.Wrapf(err, "parse quantity of %s", id)
}

func decode(id string, h map[string]string) (stock.Ingredient, error) {
	i := stock.Ingredient{ID: id, Name: h["name"], Unit: h["unit"]}
	var err error
	if i.CompanyID, err = strconv.ParseInt(h["company_id"], 10, 64); err != nil {
		return i, errors.Wrapf(err, "parse company of %s", id)
	}
	if i.OnHand, err = fromMicro(h["on_hand"]); err != nil {
		return i, errors.Wrapf(err, "parse quantity of %s", id)
	}
	if i.MinThreshold, err = decimal.NewFromString(h["min_threshold"]); err != nil {
		return i, errors.Wrapf(err, "parse threshold of %s", id)
	}
	i.CreatedAt, _ = time.Parse(time.RFC3339Nano, h["created_at"])
	i.UpdatedAt, _ = time.Parse(time.RFC3339Nano, h["updated_at"])
	return i, nil
}
