package manager

import (
	"context"
	"strconv"
)

// Switch validates id and starts loading it in the background. It returns an
// operation ID; callers poll Status to observe the transition.
func (m *Manager) Switch(ctx context.Context, id string) (string, error) {
	mdl, err := m.resolve(id)
	if err != nil {
		return "", err
	}
	op := m.nextOpID()
	go func(opID string) {
		// Detached so the load outlives the request that asked for it.
		if err := m.EnsureModel(context.Background(), id); err != nil {
			zlog.Warn().Err(err).Str("op", opID).Str("model", mdl.ID).Msg("switch failed")
		}
	}(op)
	return op, nil
}

func (m *Manager) nextOpID() string {
	return "op-" + strconv.FormatUint(m.opSeq.Add(1), 10)
}
