package dns

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"

	"github.com/digitalocean/godo"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/oauth2"

	"droplet/pkg/config"
)

// TokenEnv is consulted when dns.token is empty.
const TokenEnv = "DIGITALOCEAN_TOKEN"

// recordsPerPage is the page size used when listing a zone's records.
const recordsPerPage = 200

// Updater keeps a DigitalOcean DNS record pointed at this machine.
type Updater struct {
	lookupIP func(ctx context.Context, cfg config.DNS) (net.IP, error)
}

// NewUpdater creates an Updater that looks up the public IP from dns.ip_source.
func NewUpdater() *Updater {
	return &Updater{
		lookupIP: func(ctx context.Context, cfg config.DNS) (net.IP, error) {
			return NewIPResolver(cfg.Retries, cfg.Timeout).Lookup(ctx, cfg.IPSource)
		},
	}
}

// target is the record an update converges on.
type target struct {
	host  string
	zone  string
	name  string
	rtype string
	ip    string
	ttl   int
}

// Update creates or edits the record for dns.hostname and returns a
// human-readable description of what changed.
func (u *Updater) Update(ctx context.Context, cfg *config.Config) (string, error) {
	dc := cfg.DNS

	if dc.Hostname == "" {
		return "", fmt.Errorf("no hostname configured (set dns.hostname)")
	}
	token := dc.Token
	if token == "" {
		token = os.Getenv(TokenEnv)
	}
	if token == "" {
		return "", fmt.Errorf("no API token configured (set dns.token or %s)", TokenEnv)
	}

	if dc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dc.Timeout)
		defer cancel()
	}

	t, err := u.resolveTarget(ctx, dc)
	if err != nil {
		return "", err
	}

	client, err := newClient(ctx, token, dc.APIURL)
	if err != nil {
		return "", err
	}

	slog.Info("Updating DNS record", "host", t.host, "zone", t.zone, "type", t.rtype, "ip", t.ip)

	existing, err := findRecord(ctx, client, t)
	if err != nil {
		return "", err
	}

	request := &godo.DomainRecordEditRequest{
		Type: t.rtype,
		Name: t.name,
		Data: t.ip,
		TTL:  t.ttl,
	}

	switch {
	case existing == nil:
		if _, _, err := client.Domains.CreateRecord(ctx, t.zone, request); err != nil {
			return "", fmt.Errorf("failed to create %s record for %s: %w", t.rtype, t.host, err)
		}
		return fmt.Sprintf("created %s record\n%s -> %s", t.rtype, t.host, t.ip), nil

	case existing.Data == t.ip:
		return fmt.Sprintf("%s record %s already points to %s", t.rtype, t.host, t.ip), nil

	default:
		if _, _, err := client.Domains.EditRecord(ctx, t.zone, existing.ID, request); err != nil {
			return "", fmt.Errorf("failed to update %s record for %s: %w", t.rtype, t.host, err)
		}
		return fmt.Sprintf("updated %s record\n%s -> %s (was %s)", t.rtype, t.host, t.ip, existing.Data), nil
	}
}

func (u *Updater) resolveTarget(ctx context.Context, dc config.DNS) (*target, error) {
	host := strings.TrimSuffix(strings.ToLower(dc.Hostname), ".")

	zone, err := zoneFor(host, dc.Domain)
	if err != nil {
		return nil, err
	}
	name, err := recordName(host, zone)
	if err != nil {
		return nil, err
	}

	var ip net.IP
	if dc.IP != "" {
		ip = net.ParseIP(dc.IP)
		if ip == nil {
			return nil, fmt.Errorf("invalid static IP address %q", dc.IP)
		}
	} else {
		ip, err = u.lookupIP(ctx, dc)
		if err != nil {
			return nil, fmt.Errorf("failed to determine public IP address: %w", err)
		}
	}

	rtype := "AAAA"
	if ip.To4() != nil {
		rtype = "A"
	}

	return &target{
		host:  host,
		zone:  zone,
		name:  name,
		rtype: rtype,
		ip:    ip.String(),
		ttl:   dc.TTL,
	}, nil
}

// zoneFor returns the configured zone, or the registrable domain of host.
func zoneFor(host, domain string) (string, error) {
	if domain != "" {
		return strings.TrimSuffix(strings.ToLower(domain), "."), nil
	}
	zone, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("failed to derive zone for %s: %w", host, err)
	}
	return zone, nil
}

// recordName returns host relative to zone, "@" for the apex.
func recordName(host, zone string) (string, error) {
	if host == zone {
		return "@", nil
	}
	if !strings.HasSuffix(host, "."+zone) {
		return "", fmt.Errorf("hostname %s is not inside zone %s", host, zone)
	}
	return strings.TrimSuffix(host, "."+zone), nil
}

func newClient(ctx context.Context, token, apiURL string) (*godo.Client, error) {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))

	var opts []godo.ClientOpt
	if apiURL != "" {
		opts = append(opts, godo.SetBaseURL(apiURL))
	}

	client, err := godo.New(httpClient, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create DigitalOcean client: %w", err)
	}
	return client, nil
}

// findRecord walks every page of the zone looking for the target's type and name.
func findRecord(ctx context.Context, client *godo.Client, t *target) (*godo.DomainRecord, error) {
	opt := &godo.ListOptions{Page: 1, PerPage: recordsPerPage}

	for {
		records, resp, err := client.Domains.Records(ctx, t.zone, opt)
		if err != nil {
			return nil, fmt.Errorf("failed to list records of %s: %w", t.zone, err)
		}

		for i := range records {
			if records[i].Type == t.rtype && records[i].Name == t.name {
				return &records[i], nil
			}
		}

		if resp == nil || resp.Links == nil || resp.Links.IsLastPage() {
			return nil, nil
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, fmt.Errorf("failed to paginate records of %s: %w", t.zone, err)
		}
		opt.Page = page + 1
	}
}
