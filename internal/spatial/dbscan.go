package spatial

const (
	labelUnvisited = 0
	labelNoise     = -1
)

// DBSCAN groups points into density-connected clusters and returns each
// cluster as a list of indices into points.
//
// Points are visited in input order. A point whose eps-neighborhood (itself
// included) holds fewer than minPts points is marked noise; it may later be
// claimed as a border point by a cluster that reaches it. Otherwise it seeds a
// new cluster that is grown breadth-first, expanding only through core points.
// Clusters come back in order of discovery and members in order of inclusion,
// so the same input order always yields the same result. Noise is dropped.
//
// An eps that is not positive and finite, or minPts < 1, yields no clusters.
func DBSCAN(points []Point, eps float64, minPts int) [][]int {
	if len(points) == 0 || minPts < 1 {
		return nil
	}
	grid, ok := NewGrid(points, eps)
	if !ok {
		return nil
	}

	labels := make([]int, len(points))
	var clusters [][]int

	for i := range points {
		if labels[i] != labelUnvisited {
			continue
		}
		neighbors := grid.Neighbors(i)
		if len(neighbors) < minPts {
			labels[i] = labelNoise
			continue
		}

		id := len(clusters) + 1
		labels[i] = id
		members := []int{i}

		queue := neighbors
		for head := 0; head < len(queue); head++ {
			j := queue[head]
			switch labels[j] {
			case labelNoise:
				// Border point: reachable, but never expands the cluster.
				labels[j] = id
				members = append(members, j)
				continue
			case labelUnvisited:
			default:
				continue
			}

			labels[j] = id
			members = append(members, j)
			if jn := grid.Neighbors(j); len(jn) >= minPts {
				queue = append(queue, jn...)
			}
		}

		clusters = append(clusters, members)
	}

	return clusters
}
