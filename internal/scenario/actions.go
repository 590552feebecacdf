package scenario

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/transhist/internal/history"
	"github.com/roach88/transhist/internal/merge"
	"github.com/roach88/transhist/internal/record"
)

// Action names accepted in flow steps.
const (
	ActionInsert              = "history.insert"
	ActionFindMergeCandidates = "history.findMergeCandidates"
	ActionMergeRecords        = "history.mergeRecords"
	ActionBlacklist           = "history.blacklist"
	ActionIsBlacklisted       = "history.isBlacklisted"
	ActionRecords             = "history.records"
)

type actionOutput struct {
	result        map[string]any
	alreadyMerged bool
}

type actionFunc func(ctx context.Context, s *history.Session, args map[string]any) (actionOutput, error)

var actions = map[string]actionFunc{
	ActionInsert:              runInsert,
	ActionFindMergeCandidates: runFindMergeCandidates,
	ActionMergeRecords:        runMergeRecords,
	ActionBlacklist:           runBlacklist,
	ActionIsBlacklisted:       runIsBlacklisted,
	ActionRecords:             runRecords,
}

// pairArgs names two records by semantic key.
type pairArgs struct {
	Source record.TranslationKey `json:"source"`
	Target record.TranslationKey `json:"target"`
}

type recordsArgs struct {
	StarredOnly     bool   `json:"starredOnly"`
	IncludeArchived bool   `json:"includeArchived"`
	SourceLanguage  string `json:"sourceLanguage"`
	TargetLanguage  string `json:"targetLanguage"`
	Tag             string `json:"tag"`
}

func decodeArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

func runInsert(ctx context.Context, s *history.Session, args map[string]any) (actionOutput, error) {
	var r record.HistoryRecord
	if err := decodeArgs(args, &r); err != nil {
		return actionOutput{}, err
	}
	stored, err := s.Insert(ctx, r)
	if err != nil {
		return actionOutput{}, err
	}
	return actionOutput{result: map[string]any{
		"id":                 stored.ID,
		"translationsNumber": stored.TranslationsNumber,
	}}, nil
}

func runFindMergeCandidates(ctx context.Context, s *history.Session, _ map[string]any) (actionOutput, error) {
	candidates, err := s.FindMergeCandidates(ctx)
	if err != nil {
		return actionOutput{}, err
	}

	list := make([]any, 0, len(candidates))
	for _, c := range candidates {
		merged := make([]any, 0, len(c.MergeRecords))
		for _, m := range c.MergeRecords {
			merged = append(merged, projection(m))
		}
		list = append(list, map[string]any{
			"record":       projection(c.Record),
			"mergeRecords": merged,
		})
	}
	return actionOutput{result: map[string]any{
		"count":      len(candidates),
		"candidates": list,
	}}, nil
}

func projection(m record.MergeHistoryRecord) map[string]any {
	return map[string]any{
		"id":                 m.ID,
		"sentence":           m.Sentence,
		"translationsNumber": m.TranslationsNumber,
	}
}

func runMergeRecords(ctx context.Context, s *history.Session, args map[string]any) (actionOutput, error) {
	var p pairArgs
	if err := decodeArgs(args, &p); err != nil {
		return actionOutput{}, err
	}
	out, err := s.MergeRecords(ctx, p.Source, p.Target)
	if err != nil {
		return actionOutput{}, err
	}
	return actionOutput{
		alreadyMerged: out.AlreadyMerged,
		result: map[string]any{
			"target": map[string]any{
				"translationsNumber": out.Target.TranslationsNumber,
				"tags":               nonNil(out.Target.Tags),
			},
			"source": map[string]any{
				"isArchived": out.Source.IsArchived,
				"tags":       nonNil(out.Source.Tags),
			},
		},
	}, nil
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func resolvePair(ctx context.Context, s *history.Session, args map[string]any) (string, string, error) {
	var p pairArgs
	if err := decodeArgs(args, &p); err != nil {
		return "", "", err
	}
	ids := make([]string, 2)
	for i, key := range []record.TranslationKey{p.Source, p.Target} {
		r, found, err := s.Record(ctx, key)
		if err != nil {
			return "", "", err
		}
		if !found {
			return "", "", fmt.Errorf("%w: %q", merge.ErrRecordNotFound, key.Sentence)
		}
		ids[i] = r.ID
	}
	return ids[0], ids[1], nil
}

func runBlacklist(ctx context.Context, s *history.Session, args map[string]any) (actionOutput, error) {
	sourceID, targetID, err := resolvePair(ctx, s, args)
	if err != nil {
		return actionOutput{}, err
	}
	if err := s.BlacklistRecords(ctx, sourceID, targetID); err != nil {
		return actionOutput{}, err
	}
	return actionOutput{result: map[string]any{
		"sourceId": sourceID,
		"targetId": targetID,
	}}, nil
}

func runIsBlacklisted(ctx context.Context, s *history.Session, args map[string]any) (actionOutput, error) {
	sourceID, targetID, err := resolvePair(ctx, s, args)
	if err != nil {
		return actionOutput{}, err
	}
	blocked, err := s.IsBlacklisted(ctx, sourceID, targetID)
	if err != nil {
		return actionOutput{}, err
	}
	return actionOutput{result: map[string]any{"blacklisted": blocked}}, nil
}

func runRecords(ctx context.Context, s *history.Session, args map[string]any) (actionOutput, error) {
	var f recordsArgs
	if err := decodeArgs(args, &f); err != nil {
		return actionOutput{}, err
	}
	records, err := s.Records(ctx, history.RecordFilter{
		StarredOnly:     f.StarredOnly,
		IncludeArchived: f.IncludeArchived,
		SourceLanguage:  f.SourceLanguage,
		TargetLanguage:  f.TargetLanguage,
		Tag:             f.Tag,
	})
	if err != nil {
		return actionOutput{}, err
	}
	sentences := make([]string, 0, len(records))
	for _, r := range records {
		sentences = append(sentences, r.Sentence)
	}
	return actionOutput{result: map[string]any{
		"count":     len(records),
		"sentences": sentences,
	}}, nil
}
