// Package coordination links sub-sessions that must negotiate around a
// conflict and keeps the coordination log.
//
// A coordination is stored in the registry document next to the sessions it
// links. It moves from active to resolved once and never back:
//
//	active --[Resolve]--> resolved
//
// Participants exchange typed messages (info, request, proposal, agreement,
// warning) while it is open.
//
// # Coordination Log
//
// [Log] is a separate bounded document (newest first, 200 entries by
// default) that records every start, message, resolution and report. It
// implements [conflict.Journal] so coordination reports land in the same
// place.
//
// # Basic Usage
//
//	log := coordination.NewLog(cfg.Paths.CoordinationLogPath(root))
//	mgr := coordination.NewManager(store, coordination.WithLog(log), coordination.WithBus(bus))
//
//	c, err := mgr.Coordinate(ctx, []string{"frontend-a", "backend-b"}, "file-lock-conflict", nil)
//	if err != nil {
//	    return err
//	}
//	_, err = mgr.SendMessage(ctx, c.ID, "frontend-a", "taking the API section", registry.MessageProposal)
//	_, err = mgr.Resolve(ctx, c.ID, "partition", "main-agent")
package coordination
