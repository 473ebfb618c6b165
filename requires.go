package grenade

// RequiresRouting returns true if a routing of old does not serve current.
// Only weights, background source configuration and plasticity kernels may
// change without routing. oldResult is the routing of old; if it is not nil,
// weights needing more hardware synapses than routed require routing too.
//
func RequiresRouting(current, old *Network, oldResult *RoutingResult) bool {
	cps, ops := current.Populations(), old.Populations()
	if len(cps) != len(ops) {
		return true
	}
	for i, d := range cps {
		if ops[i] != d || !PopulationsEqual(current.mustPopulation(d), old.mustPopulation(d)) {
			return true
		}
	}

	if current.projections.Len() != old.projections.Len() {
		return true
	}
	for _, d := range current.Projections() {
		p := current.mustProjection(d)
		o, ok := old.Projection(d)
		if !ok || p.Pre != o.Pre || p.Post != o.Post || p.Receptor != o.Receptor || len(p.Connections) != len(o.Connections) {
			return true
		}
		for i, c := range p.Connections {
			if c.IndexPre != o.Connections[i].IndexPre || c.IndexPost != o.Connections[i].IndexPost {
				return true
			}
		}
		if oldResult != nil {
			placed := oldResult.Connections[d]
			if len(placed) != len(p.Connections) {
				return true
			}
			for i, c := range p.Connections {
				if HardwareSynapses(c.Weight) > len(placed[i]) {
					return true
				}
			}
		}
	}

	for _, d := range current.PlasticityRules() {
		o, ok := old.PlasticityRule(d)
		if !ok || current.mustPlasticityRule(d).RequiresOneSourcePerRowInOrder != o.RequiresOneSourcePerRowInOrder {
			return true
		}
	}
	if (current.MADC == nil) != (old.MADC == nil) {
		return true
	}
	if !current.CADC.Equal(old.CADC) {
		return true
	}
	if current.plasticityRules.Len() != old.plasticityRules.Len() {
		return true
	}
	for _, d := range current.PlasticityRules() {
		if !RecordingsEqual(current.mustPlasticityRule(d).Recording, old.mustPlasticityRule(d).Recording) {
			return true
		}
	}
	return false
}

// RequiresRoutingBetweenInstances returns true if consecutive execution
// instances of a network need distinct routings. Instances always share
// one.
//
func RequiresRoutingBetweenInstances(current, next *Network) bool {
	return false
}
