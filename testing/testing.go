// Package testing gathers the setup shared by the tests and the simulation:
// networks of nodes and threshold keys handed out by a trusted dealer.
package testing

import (
	"student_25_hbbft/networking"
	"student_25_hbbft/tpke"

	"go.dedis.ch/kyber/v4/group/edwards25519"
)

func SetupNetwork(network networking.Network, nbNodes int) ([]networking.NetworkInterface, error) {
	nodes := make([]networking.NetworkInterface, nbNodes)
	for i := 0; i < nbNodes; i++ {
		node, err := network.JoinNetwork()
		if err != nil {
			for _, joined := range nodes[:i] {
				_ = joined.Close()
			}
			return nil, err
		}
		nodes[i] = node
	}

	return nodes, nil
}

// CloseNetwork closes every interface and returns the first error
func CloseNetwork(ifaces []networking.NetworkInterface) error {
	var first error
	for _, iface := range ifaces {
		err := iface.Close()
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SetupSchemes deals threshold keys for nbNodes nodes tolerating f faults
// (threshold f+1) on edwards25519. Scheme i holds the key share of node i.
func SetupSchemes(nbNodes, f int) ([]*tpke.Scheme, error) {
	suite := edwards25519.NewBlakeSHA256Ed25519()
	pk, sks, err := tpke.Deal(suite, nbNodes, f+1)
	if err != nil {
		return nil, err
	}
	schemes := make([]*tpke.Scheme, nbNodes)
	for i, sk := range sks {
		schemes[i] = tpke.NewScheme(pk, sk)
	}
	return schemes, nil
}
