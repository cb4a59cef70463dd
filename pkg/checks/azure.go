package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// dnsPermissions verifies the deployer can read ACME challenge records in
// the configured DNS zone through the az CLI. Certificate issuance depends
// on this permission even when no challenge is currently pending, so an
// empty record set still passes.
func (s *Suite) dnsPermissions(ctx context.Context) Outcome {
	const name = "azure-dns-permissions"

	out, err := s.commander.Output(ctx, "az",
		"network", "dns", "record-set", "txt", "list",
		"--zone-name", s.config.DNSZone,
		"--resource-group", s.config.DNSResourceGroup,
		"--query", "[?contains(name, 'acme-challenge')].name",
		"-o", "json",
	)
	if err != nil {
		return fail(name, err.Error(), Finding{
			Severity:    SeverityHigh,
			Type:        "dns-zone-inaccessible",
			Description: fmt.Sprintf("cannot list record sets in zone %s: %v", s.config.DNSZone, err),
			Remediation: "grant the deployer identity read access on the DNS zone",
		})
	}

	var records []string
	if err := json.Unmarshal(out, &records); err != nil {
		return fail(name, "malformed record-set payload", Finding{
			Severity:    SeverityHigh,
			Type:        "dns-records-unreadable",
			Description: fmt.Sprintf("cannot parse record sets for zone %s: %v", s.config.DNSZone, err),
		})
	}
	if len(records) == 0 {
		return pass(name, "zone readable, no ACME challenge records present")
	}
	return pass(name, fmt.Sprintf("%d ACME challenge records: %s", len(records), strings.Join(records, ", ")))
}
