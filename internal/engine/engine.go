package engine

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/ivlev/ipbin/internal/apply"
	"github.com/ivlev/ipbin/internal/binning"
	"github.com/ivlev/ipbin/internal/config"
	"github.com/ivlev/ipbin/internal/logging"
	"github.com/ivlev/ipbin/internal/plan"
	"github.com/ivlev/ipbin/internal/prepare"
	"github.com/ivlev/ipbin/internal/renderer"
	"github.com/ivlev/ipbin/internal/schedule"
	"github.com/ivlev/ipbin/internal/source"
	"github.com/ivlev/ipbin/internal/system"
	"github.com/ivlev/ipbin/internal/video"
)

// Project runs one allocation from sources to plan and preview.
type Project struct {
	Config  *config.Config
	Source  source.Source
	Encoder video.VideoEncoder
	Logger  *slog.Logger

	queue apply.Queue
}

// Result summarizes a finished run.
type Result struct {
	Plan     *plan.Plan
	PlanPath string
	Frames   int
}

func NewProject(cfg *config.Config, src source.Source, ve video.VideoEncoder, logger *slog.Logger) *Project {
	return &Project{
		Config:  cfg,
		Source:  src,
		Encoder: ve,
		Logger:  logger,
	}
}

func (p *Project) Run(ctx context.Context) (*Result, error) {
	startTime := time.Now()
	cfg := p.Config

	pageCount := p.Source.PageCount()
	if pageCount == 0 {
		return nil, fmt.Errorf("источник не содержит страниц/кадров")
	}

	keyframes, err := p.keyframes(pageCount)
	if err != nil {
		return nil, fmt.Errorf("ошибка расписания: %w", err)
	}
	var sources []int
	if cfg.SourceSpec != "" {
		sources, err = schedule.ParseInts(cfg.SourceSpec)
		if err != nil {
			return nil, fmt.Errorf("ошибка списка источников: %w", err)
		}
	}

	settings := &config.SettingsFile{}
	if cfg.SettingsPath != "" {
		settings, err = config.LoadSettings(cfg.SettingsPath)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения настроек: %w", err)
		}
		fmt.Printf("[*] Используются настройки: %s\n", cfg.SettingsPath)
	}
	base := settings.BaseOrDefault()
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if settings.Detail != nil {
		if err := settings.Detail.Validate(); err != nil {
			return nil, err
		}
	}

	fmt.Println("--- [PROJECT: KEYFRAME BINS] ---")
	fmt.Printf("[*] Источник: %s | Кадров/Страниц: %d\n", cfg.InputPath, pageCount)
	fmt.Printf("[*] Расписание: %s\n", keyframes)
	fmt.Printf("[*] Ёмкость корзины: %d кадров | High detail: %v\n", cfg.MaxFramesPerBin, cfg.HighDetail)
	fmt.Println("-----------------------------")

	loadStart := time.Now()
	images, err := source.LoadAll(ctx, p.Source, cfg.DPI, cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки источника: %w", err)
	}
	loadEnd := time.Now()

	preparer := prepare.New(images, &base, settings.Detail, prepare.Options{Seed: cfg.Seed})
	req := binning.Request{
		Keyframes:       keyframes,
		Sources:         sources,
		MaxFramesPerBin: cfg.MaxFramesPerBin,
		HighDetail:      cfg.HighDetail,
	}

	allocStart := time.Now()
	alloc, err := binning.NewAllocator(preparer, p.Logger).Allocate(req)
	if err != nil {
		return nil, fmt.Errorf("ошибка распределения: %w", err)
	}
	allocEnd := time.Now()

	res := &Result{Plan: plan.FromAllocation(req, alloc)}
	fmt.Printf("[*] Корзин: %d | Последний кадр: %d\n", len(res.Plan.Bins), res.Plan.End)

	if cfg.PlanOutput != "" {
		if err := plan.Write(res.Plan, cfg.PlanOutput); err != nil {
			return nil, fmt.Errorf("ошибка записи плана: %w", err)
		}
		res.PlanPath = cfg.PlanOutput
		fmt.Printf("[*] План сохранен: %s\n", cfg.PlanOutput)
	}

	var applyEnd, encodeEnd time.Time
	applyStart := time.Now()
	if cfg.PreviewOutput != "" {
		blender := renderer.NewPreviewBlender(cfg.Width, cfg.Height, p.Logger)
		blender.Debug = cfg.Debug
		if cfg.Workers > 0 {
			blender.Workers = cfg.Workers
		}
		defer blender.Reset()

		p.queue.Push(alloc)
		applier := apply.NewApplier(blender, p.Logger)
		opts := apply.Options{HighDetail: cfg.HighDetail, Base: &base, Detail: settings.Detail}
		if err := applier.ApplyNext(ctx, &p.queue, opts); err != nil {
			return nil, fmt.Errorf("ошибка применения: %w", err)
		}
		applyEnd = time.Now()

		frames := blender.Frames()
		res.Frames = len(frames)
		out := make([]image.Image, len(frames))
		for i, f := range frames {
			out[i] = f.Image
		}

		params := video.Params{FPS: cfg.FPS, Encoder: cfg.VideoEncoder, Quality: cfg.Quality}
		if err := p.Encoder.EncodeFrames(ctx, out, cfg.PreviewOutput, params); err != nil {
			return nil, fmt.Errorf("ошибка кодирования превью: %w", err)
		}
		encodeEnd = time.Now()
		fmt.Printf("[*] Превью: %s (%d кадров)\n", cfg.PreviewOutput, res.Frames)
	}

	if cfg.ShowStats {
		fmt.Println("\n--- [PERFORMANCE STATS] ---")
		fmt.Printf("[*] Загрузка:     %v\n", loadEnd.Sub(loadStart).Round(time.Millisecond))
		fmt.Printf("[*] Распределение: %v\n", allocEnd.Sub(allocStart).Round(time.Millisecond))
		if !applyEnd.IsZero() {
			fmt.Printf("[*] Применение:   %v\n", applyEnd.Sub(applyStart).Round(time.Millisecond))
			fmt.Printf("[*] Кодирование:  %v\n", encodeEnd.Sub(applyEnd).Round(time.Millisecond))
		}
		fmt.Printf("[*] ИТОГО:        %v\n", time.Since(startTime).Round(time.Millisecond))
		if report, err := system.ReadMemory(); err == nil {
			fmt.Print(report)
		} else {
			logging.WithComponent(p.Logger, "engine").Warn("memory report unavailable", "err", err)
		}
		fmt.Println("---------------------------")
	}

	return res, nil
}

// keyframes parses the configured schedule, or spaces keyframes every Interval
// frames with one keyframe per page when no positions are given.
func (p *Project) keyframes(pageCount int) (schedule.Keyframes, error) {
	cfg := p.Config
	if cfg.KeyframeSpec != "" {
		return schedule.Parse(cfg.KeyframeSpec, cfg.WeightSpec)
	}
	if cfg.Interval <= 0 {
		return schedule.Keyframes{}, fmt.Errorf("interval must be positive, got %d", cfg.Interval)
	}
	return schedule.Even(0, cfg.Interval, pageCount+1, 1.0), nil
}
