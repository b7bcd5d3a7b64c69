package nlae

import (
	"fmt"

	"github.com/eoscore/eoscore/cmn"
)

// QoSClass is a named set of canonical properties (spec §4.3 "QoS
// engine").
type QoSClass struct {
	Name      string
	Layout    string
	Replica   int // 1..16
	Checksum  string
	Placement string
}

func (c QoSClass) matches(layout, checksum, placement string, replica int) bool {
	return c.Layout == layout && c.Checksum == checksum && c.Placement == placement && c.Replica == replica
}

// RegisterClass adds or replaces a QoS class in the process-global
// table (Design Notes "Global mutable state" — callers register classes
// during bootstrap, before serving requests).
func (eng *Engine) RegisterClass(c QoSClass) {
	for i, existing := range eng.classes {
		if existing.Name == c.Name {
			eng.classes[i] = c
			return
		}
	}
	eng.classes = append(eng.classes, c)
}

const (
	qosClassAttr  = "user.eos.qos.class"
	qosTargetAttr = "user.eos.qos.target"
)

// QoSLs implements qos_ls (spec §4.3 "Retrieval"): for a container,
// derive the current class from its property tuple, persisting the
// match if it differs from the stored attribute; read the attribute
// unchanged on subsequent calls.
func (eng *Engine) QoSLs(lt *LockTracker, id ID, layout, checksum, placement string, replica int) (string, error) {
	e, err := eng.reg.Lookup(id)
	if err != nil {
		return "", err
	}
	lt.AcquireRead(e)
	stored := e.attrs[qosClassAttr]
	lt.ReleaseRead(e)

	if id.Kind != KindContainer {
		return stored, nil
	}

	var match string
	for _, c := range eng.classes {
		if c.matches(layout, checksum, placement, replica) {
			match = c.Name
			break
		}
	}
	if match == "" || match == stored {
		return stored, nil
	}

	lt.AcquireWrite(e)
	defer lt.ReleaseWrite(e)
	e.attrs[qosClassAttr] = match
	return match, nil
}

// QoSSet implements qos_set (spec §4.3 "Assignment"). For a file it
// synthesizes a conversion-job id and stores qos.target; for a
// container it stores only the target attribute.
func (eng *Engine) QoSSet(lt *LockTracker, id ID, target, space string, layoutID int) (jobID string, err error) {
	e, lookupErr := eng.reg.Lookup(id)
	if lookupErr != nil {
		return "", lookupErr
	}
	lt.AcquireRead(e)
	current := e.attrs[qosClassAttr]
	lt.ReleaseRead(e)
	if target == current {
		return "", &cmn.ErrConflict{Reason: "qos_set: target equals current class", Path: e.Path}
	}

	lt.AcquireWrite(e)
	defer lt.ReleaseWrite(e)
	e.attrs[qosTargetAttr] = target

	if id.Kind == KindFile {
		jobID = fmt.Sprintf("%d:%s#%d", id.Num, space, layoutID)
	}
	return jobID, nil
}
