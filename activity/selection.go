package activity

import (
	"fmt"
	"sort"
)

func tankAvailable(manifest Manifest, lines []Line, tank string) bool {
	if manifest[tank] <= 0 {
		return false
	}
	for _, l := range lines {
		if l.SourceTank == tank {
			return false
		}
	}
	return true
}

// AvailableTanks lists the manifest tanks with a positive quantity that no
// line, active or finished, has claimed yet.
func AvailableTanks(manifest Manifest, lines []Line) []string {
	var out []string
	for tank := range manifest {
		if tankAvailable(manifest, lines, tank) {
			out = append(out, tank)
		}
	}
	sort.Strings(out)
	return out
}

// BusyDestinations returns the destination ids held by running or paused lines.
func BusyDestinations(lines []Line) map[string]bool {
	busy := make(map[string]bool)
	for _, l := range lines {
		if l.Status.Active() {
			busy[l.Dest.ID] = true
		}
	}
	return busy
}

// SelectableDestinations lists the destination ids an operator may pick for a
// new line. statuses carries the operational status per destination id; an
// id without an entry counts as active.
func SelectableDestinations(layout Layout, lines []Line, statuses map[string]string, t DestType, unit string) ([]string, error) {
	var candidates []string
	switch t {
	case DestPlantSilo:
		silos, ok := layout.Units[unit]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
		}
		candidates = silos
	case DestBufferSilo:
		candidates = layout.BufferSilos
	case DestBufferTank:
		candidates = layout.BufferTanks
	default:
		return nil, fmt.Errorf("%w: destination type %q", ErrIncompleteDestination, t)
	}

	busy := BusyDestinations(lines)
	out := make([]string, 0, len(candidates))
	for _, id := range candidates {
		if busy[id] {
			continue
		}
		if t == DestPlantSilo {
			if st, ok := statuses[id]; ok && st != StockActive {
				continue
			}
		}
		out = append(out, id)
	}
	return out, nil
}

// Split separates active lines from finished ones, keeping order.
func Split(lines []Line) (active, completed []Line) {
	for _, l := range lines {
		if l.Status == StatusFinished {
			completed = append(completed, l)
		} else {
			active = append(active, l)
		}
	}
	return active, completed
}
