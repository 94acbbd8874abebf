package fat32

// followFAT implements §4.F: a read-only, total walk of a cluster chain
// starting at start, with cycle detection, bounds checking, and the
// reserved-value termination semantics (EOC, bad cluster, broken chain).
func (v *Volume) followFAT(start uint32) (chain []uint32, err error) {
	if v.fat == nil || start == 0 {
		return nil, nil
	}

	visited := make(map[uint32]bool)
	current := start

	for {
		if current < 2 || current >= uint32(len(v.fat)) {
			v.logger.Warnf("followFAT: cluster %d out of FAT bounds, stopping", current)
			break
		}

		if visited[current] {
			v.logger.Warnf("followFAT: cycle detected at cluster %d, cutting chain", current)
			break
		}

		visited[current] = true
		next := v.fat[current] & fatEntryMask

		if isEndOfChain(next) {
			chain = append(chain, current)
			break
		}

		if isBadCluster(next) {
			v.logger.Warnf("followFAT: cluster %d marked bad, stopping chain", current)
			chain = append(chain, current)
			break
		}

		if isFreeCluster(next) {
			v.logger.Warnf("followFAT: cluster %d has broken (free) successor, stopping chain", current)
			chain = append(chain, current)
			break
		}

		if visited[next] {
			chain = append(chain, current)
			v.logger.Warnf("followFAT: next cluster %d already visited, cutting chain at %d", next, current)
			break
		}

		chain = append(chain, current)
		current = next
	}

	return chain, nil
}
