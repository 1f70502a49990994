package nasr

import (
	"strings"
)

// procRows accumulates the raw route rows for one (procedure, airport)
// while a file is streamed.
type procRows struct {
	code    string
	airport string
	kind    ProcKind

	// body variants: one fix list per runway grouping, in file order.
	bodies      [][]string
	transitions map[string][]string
}

// loadProcedures reads one of the DP_RTE/STAR_RTE files. Rows carry a
// computer code ("LOGAN4.LOGAN"), a portion type (BODY or TRANSITION), a
// route name, the serving airport, a point sequence number and the point
// itself. Body rows repeat once per runway variant; the common body is the
// ordered intersection of all variants.
func loadProcedures(path string, kind ProcKind, x *Index) error {
	codeCol := "DP_COMPUTER_CODE"
	if kind == ProcSTAR {
		codeCol = "STAR_COMPUTER_CODE"
	}

	acc := make(map[string]*procRows)
	var order []string
	lastSeq := make(map[string]int)

	err := eachRow(path, func(r row) {
		code := strings.ToUpper(r.get(codeCol))
		airport := strings.ToUpper(r.get("ARPT_ID"))
		point := strings.ToUpper(r.get("POINT"))
		if code == "" || point == "" {
			return
		}
		key := code + "|" + airport
		p := acc[key]
		if p == nil {
			p = &procRows{
				code:        code,
				airport:     airport,
				kind:        kind,
				transitions: make(map[string][]string),
			}
			acc[key] = p
			order = append(order, key)
		}

		seq := r.getInt("POINT_SEQ")
		switch strings.ToUpper(r.get("ROUTE_PORTION_TYPE")) {
		case "BODY":
			// A sequence reset starts the next runway variant.
			if len(p.bodies) == 0 || seq <= lastSeq[key] {
				p.bodies = append(p.bodies, nil)
			}
			last := len(p.bodies) - 1
			p.bodies[last] = append(p.bodies[last], point)
			lastSeq[key] = seq
		case "TRANSITION":
			name := strings.ToUpper(r.get("ROUTE_NAME"))
			p.transitions[name] = append(p.transitions[name], point)
		}
	})
	if err != nil {
		return err
	}

	for _, key := range order {
		p := acc[key]
		proc := buildProcedure(p)
		x.procs[proc.Name] = append(x.procs[proc.Name], proc)
	}
	return nil
}

// buildProcedure finishes one procedure: intersect the body variants,
// reverse the file order into flight direction, and key each transition by
// name and by its enroute endpoint.
func buildProcedure(p *procRows) *Procedure {
	name := p.code
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}

	body := intersectOrdered(p.bodies)
	reverse(body)

	proc := &Procedure{
		Code:    p.code,
		Name:    name,
		Kind:    p.kind,
		Airport: p.airport,
		Body:    body,
	}
	if len(p.transitions) > 0 {
		proc.Transitions = make(map[string]*Transition, len(p.transitions)*2)
		for tname, fixes := range p.transitions {
			fx := append([]string(nil), fixes...)
			reverse(fx)
			t := &Transition{Name: tname, Fixes: fx}
			if len(fx) > 0 {
				if p.kind == ProcSTAR {
					t.Endpoint = fx[0]
				} else {
					t.Endpoint = fx[len(fx)-1]
				}
			}
			proc.Transitions[tname] = t
			if t.Endpoint != "" {
				proc.Transitions[t.Endpoint] = t
			}
		}
	}
	return proc
}

// intersectOrdered returns the fixes present in every variant, in the order
// of the first variant.
func intersectOrdered(variants [][]string) []string {
	if len(variants) == 0 {
		return nil
	}
	if len(variants) == 1 {
		return append([]string(nil), variants[0]...)
	}
	var out []string
	for _, fix := range variants[0] {
		inAll := true
		for _, v := range variants[1:] {
			if !contains(v, fix) {
				inAll = false
				break
			}
		}
		if inAll && !contains(out, fix) {
			out = append(out, fix)
		}
	}
	return out
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
