package guest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/mensylisir/xmguest/cache"
	"github.com/mensylisir/xmguest/common"
	"github.com/mensylisir/xmguest/runner"
)

const defaultResolveTTL = 5 * time.Minute

// DefaultResolver is shared by strategies created without WithResolver.
var DefaultResolver = NewResolver(defaultResolveTTL)

// Resolver maps container names to numeric CTIDs, per host.
type Resolver struct {
	cache *cache.Cache[string, string]
}

func NewResolver(ttl time.Duration, opts ...cache.Option[string, string]) *Resolver {
	opts = append([]cache.Option[string, string]{cache.WithDefaultTTL[string, string](ttl)}, opts...)
	return &Resolver{cache: cache.NewCache[string, string](opts...)}
}

// Resolve returns the CTID of target on r's host. Numeric targets are
// returned as is.
func (res *Resolver) Resolve(ctx context.Context, r *runner.Runner, target string) (string, error) {
	if isCtid(target) {
		return target, nil
	}
	key := r.HostString() + "/" + target
	ctid, cached, err := res.cache.GetOrLoad(key, func() (string, error) {
		return lookupCtid(ctx, r, target)
	})
	if err != nil {
		return "", err
	}
	if !cached {
		r.Logger().WithField(common.GuestName, target).Debugf("resolved to CTID %s", ctid)
	}
	return ctid, nil
}

// Forget drops the cached CTID of target on host.
func (res *Resolver) Forget(host, target string) {
	res.cache.Delete(host + "/" + target)
}

func lookupCtid(ctx context.Context, r *runner.Runner, target string) (string, error) {
	cmd := fmt.Sprintf(common.ResolveCtidCmdTpl, runner.Quote(target))
	quiet := r.WithSettings(func(s *runner.Settings) { s.WarnOnly = true })
	result, err := RunHostCommand(ctx, quiet, cmd, true, false, false)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve container %s on %s", target, r.HostString())
	}
	if result.Failed {
		return "", errors.Errorf("container %s not found on %s (return code %d): %s",
			target, r.HostString(), result.ReturnCode, strings.TrimSpace(result.Stderr))
	}
	ctid := strings.TrimSpace(result.Stdout)
	if !isCtid(ctid) {
		return "", errors.Errorf("unexpected CTID %q for container %s on %s", ctid, target, r.HostString())
	}
	return ctid, nil
}

func isCtid(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
