package profile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// SubnetTier distinguishes internet-facing subnets from NAT-routed ones
type SubnetTier string

const (
	TierPublic  SubnetTier = "public"
	TierPrivate SubnetTier = "private"
)

// SubnetSpec is one planned subnet
type SubnetSpec struct {
	Name             string
	Tier             SubnetTier
	AvailabilityZone string
	CIDR             string
}

// ErrAddressSpaceExhausted is returned when the subnets do not fit in the network CIDR
var ErrAddressSpaceExhausted = errors.New("network address space exhausted")

// SubnetPlan carves one public and one private subnet per availability zone
// out of the network CIDR. Public subnets are allocated first, then private
// ones, each block aligned to its own mask.
func (p DeploymentProfile) SubnetPlan(azs []string) ([]SubnetSpec, error) {
	if len(azs) == 0 {
		return nil, fmt.Errorf("at least one availability zone is required")
	}

	network, err := netip.ParsePrefix(p.Network.CIDR)
	if err != nil {
		return nil, fmt.Errorf("failed to parse network CIDR %q: %w", p.Network.CIDR, err)
	}
	if !network.Addr().Is4() {
		return nil, fmt.Errorf("network CIDR %q is not IPv4", p.Network.CIDR)
	}
	network = network.Masked()

	start := addrToUint(network.Addr())
	end := uint64(start) + uint64(1)<<(32-network.Bits())
	cursor := uint64(start)

	tiers := []struct {
		tier SubnetTier
		mask int
	}{
		{TierPublic, p.Network.PublicSubnetMask},
		{TierPrivate, p.Network.PrivateSubnetMask},
	}

	specs := make([]SubnetSpec, 0, len(azs)*len(tiers))
	for _, tier := range tiers {
		if tier.mask < network.Bits() || tier.mask > 28 {
			return nil, fmt.Errorf("%s subnet mask /%d does not fit network /%d", tier.tier, tier.mask, network.Bits())
		}
		size := uint64(1) << (32 - tier.mask)

		for i, az := range azs {
			if rem := cursor % size; rem != 0 {
				cursor += size - rem
			}
			if cursor+size > end {
				return nil, fmt.Errorf("%w: %s subnet %d needs /%d", ErrAddressSpaceExhausted, tier.tier, i+1, tier.mask)
			}

			prefix := netip.PrefixFrom(uintToAddr(uint32(cursor)), tier.mask)
			specs = append(specs, SubnetSpec{
				Name:             fmt.Sprintf("%s-%d", tier.tier, i+1),
				Tier:             tier.tier,
				AvailabilityZone: az,
				CIDR:             prefix.String(),
			})
			cursor += size
		}
	}

	return specs, nil
}

func addrToUint(a netip.Addr) uint32 {
	b := a.As4()
	return binary.BigEndian.Uint32(b[:])
}

func uintToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
