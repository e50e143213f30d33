package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ivlev/ipbin/internal/config"
	"github.com/ivlev/ipbin/internal/engine"
	"github.com/ivlev/ipbin/internal/logging"
	"github.com/ivlev/ipbin/internal/plan"
	"github.com/ivlev/ipbin/internal/source"
	"github.com/ivlev/ipbin/internal/system"
	"github.com/ivlev/ipbin/internal/video"
)

var version = "dev"

func main() {
	// Увеличиваем лимиты системы (для macOS/Linux)
	system.InitResourceLimits()

	// Создаем нужные директории, если их нет
	for _, d := range []string{"input/images", "output"} {
		os.MkdirAll(d, 0755)
	}

	inputPtr := flag.String("input", "", "Папка с изображениями, изображение или PDF (по умолчанию: самый свежий в input/images/)")
	keyframesPtr := flag.String("keyframes", config.DefaultKeyframes, "Позиции ключевых кадров через запятую (пусто: каждые -interval кадров)")
	weightsPtr := flag.String("weights", config.DefaultWeights, "Веса ключевых кадров через запятую")
	sourcesPtr := flag.String("sources", "", "Индексы источников для ключевых кадров 1..N (по умолчанию: i-1)")
	intervalPtr := flag.Int("interval", 16, "Шаг ключевых кадров, если -keyframes пуст")
	maxFramesPtr := flag.Int("max-frames", config.DefaultMaxFramesPerBin, "Максимум кадров в корзине")
	highDetailPtr := flag.Bool("high-detail", true, "Готовить high-detail вариант")
	settingsPtr := flag.String("settings", "", "YAML с настройками base/detail")
	planPtr := flag.String("plan", "", "Путь к плану YAML (по умолчанию: output/plan_<время>.yaml)")
	previewPtr := flag.String("preview", "", "Путь к превью mp4 (пусто: без превью)")
	widthPtr := flag.Int("width", config.DefaultWidth, "Ширина превью")
	heightPtr := flag.Int("height", config.DefaultHeight, "Высота превью")
	fpsPtr := flag.Int("fps", config.DefaultFPS, "FPS")
	workersPtr := flag.Int("workers", runtime.NumCPU(), "Потоки")
	dpiPtr := flag.Int("dpi", config.DefaultDPI, "DPI для PDF")
	debugPtr := flag.Bool("debug", false, "QR-метка с корзиной/кадром/весом на каждом кадре превью")
	logLevelPtr := flag.String("log-level", "info", "Уровень логов: debug, info, warn, error")
	statsPtr := flag.Bool("stats", false, "Показать статистику производительности и памяти")
	seedPtr := flag.Int64("seed", 0, "Seed для шумовых тензоров")
	qualityPtr := flag.Int("quality", 0, "Качество превью (0 - авто)")
	versionPtr := flag.Bool("version", false, "Показать версию")

	flag.Parse()

	if *versionPtr {
		fmt.Println("ipbin", version)
		return
	}

	logger := logging.NewLogger(*logLevelPtr)

	inputPath := *inputPtr
	if inputPath == "" {
		latest, err := system.FindInput("input/images")
		if err != nil {
			log.Fatalf("[-] Ошибка: %v. Положите изображения или PDF в input/images/", err)
		}
		inputPath = latest
		fmt.Printf("[*] Выбран источник: %s\n", inputPath)
	}

	src, err := source.Open(inputPath)
	if err != nil {
		log.Fatalf("[-] Ошибка инициализации источника: %v", err)
	}
	defer src.Close()

	planPath := *planPtr
	if planPath == "" {
		planPath = plan.DefaultPath("output")
	}

	encoderName := "libx264"
	if *previewPtr != "" {
		encoderName = system.GetBestH264Encoder()
		if encoderName != "libx264" {
			fmt.Printf("[*] Обнаружено аппаратное ускорение: %s\n", encoderName)
		}
	}
	quality := *qualityPtr
	if quality == 0 {
		quality = video.DefaultQuality(encoderName)
	}

	cfg := &config.Config{
		InputPath:       inputPath,
		KeyframeSpec:    *keyframesPtr,
		WeightSpec:      *weightsPtr,
		SourceSpec:      *sourcesPtr,
		Interval:        *intervalPtr,
		MaxFramesPerBin: *maxFramesPtr,
		HighDetail:      *highDetailPtr,
		SettingsPath:    *settingsPtr,
		PlanOutput:      planPath,
		PreviewOutput:   *previewPtr,
		Width:           *widthPtr,
		Height:          *heightPtr,
		FPS:             *fpsPtr,
		Workers:         *workersPtr,
		DPI:             *dpiPtr,
		Seed:            *seedPtr,
		Debug:           *debugPtr,
		ShowStats:       *statsPtr,
		VideoEncoder:    encoderName,
		Quality:         quality,
		BuildVersion:    version,
	}
	if cfg.KeyframeSpec == "" {
		cfg.WeightSpec = ""
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	project := engine.NewProject(cfg, src, &video.FFmpegEncoder{}, logger)
	res, err := project.Run(ctx)
	if err != nil {
		src.Close()
		log.Fatalf("[-] Ошибка проекта: %v", err)
	}

	fmt.Printf("[+++] Успех! План: %s (корзин: %d)\n", res.PlanPath, len(res.Plan.Bins))
}
