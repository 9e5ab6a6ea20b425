package main

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/bamsammich/ferry/internal/platform"
	"github.com/bamsammich/ferry/internal/transport/proto"
)

// transferItem pairs a local source with the name the daemon stores it as.
type transferItem struct {
	src  string
	name string
}

// transferPlan is what `ferry send` will do against one destination.
type transferPlan struct {
	items []transferItem
	// check is the destination the daemon is asked to validate first.
	check string
	mode  proto.DestinationMode
}

// planTransfer maps sources onto daemon-side names under dst.
//
// One source is sent as a single file: to dst itself, or to dst/<base> when
// dst is empty or ends with a slash. Several sources land in dst as a
// directory, which the daemon creates if only its parent exists. Standard
// input has no base name, so it needs an explicit file destination.
func planTransfer(sources []string, dst string) (transferPlan, error) {
	if len(sources) == 0 {
		return transferPlan{}, errors.New("no sources")
	}

	if len(sources) == 1 {
		src := sources[0]
		name := dst
		if name == "" || strings.HasSuffix(name, "/") {
			if src == platform.StdinPath {
				return transferPlan{}, errors.New("standard input needs an explicit destination file name")
			}
			name = path.Join(name, filepath.Base(src))
		}
		return transferPlan{
			items: []transferItem{{src: src, name: name}},
			check: name,
			mode:  proto.SingleFile,
		}, nil
	}

	plan := transferPlan{check: dst, mode: proto.RecursiveDirectory}
	seen := make(map[string]string, len(sources))
	for _, src := range sources {
		if src == platform.StdinPath {
			return transferPlan{}, errors.New("standard input cannot be combined with other sources")
		}
		base := filepath.Base(src)
		if prev, ok := seen[base]; ok {
			return transferPlan{}, fmt.Errorf("sources %s and %s would both be stored as %s", prev, src, base)
		}
		seen[base] = src
		plan.items = append(plan.items, transferItem{src: src, name: path.Join(dst, base)})
	}
	return plan, nil
}
