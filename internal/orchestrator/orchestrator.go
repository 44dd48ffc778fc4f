package orchestrator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"barrio-alarm/internal/channels"
	"barrio-alarm/internal/config"
	"barrio-alarm/internal/enrichment"
	"barrio-alarm/internal/models"

	"go.uber.org/zap"
)

// DefaultSuccessThreshold is the number of stages that must fully succeed
// for a broadcast to count as successful overall.
const DefaultSuccessThreshold = 3

// blinkInterval is the pause between alarm switch toggles.
const blinkInterval = 500 * time.Millisecond

// ProfileResolver resolves the reporter to an enriched profile.
type ProfileResolver interface {
	Enrich(ctx context.Context, phone, groupID, groupName string) *models.EnrichedProfile
}

// EmergencyAuditor records the completed broadcast.
type EmergencyAuditor interface {
	LogEmergencyEvent(ctx context.Context, outcome *models.BroadcastOutcome) error
}

// Orchestrator runs the five-stage emergency broadcast pipeline. Stages
// run in a fixed order and are isolated: a stage failing, or panicking,
// never stops the stages after it.
type Orchestrator struct {
	device    channels.DeviceController
	messenger channels.Messenger
	speech    channels.SpeechSynthesizer
	composer  channels.AlertComposer
	renderer  channels.AlertRenderer
	enricher  ProfileResolver
	auditor   EmergencyAuditor
	config    *config.Config
	logger    *zap.Logger

	successThreshold int
	sleep            func(time.Duration)
}

// New creates the orchestrator.
func New(
	device channels.DeviceController,
	messenger channels.Messenger,
	speech channels.SpeechSynthesizer,
	composer channels.AlertComposer,
	renderer channels.AlertRenderer,
	enricher ProfileResolver,
	auditor EmergencyAuditor,
	cfg *config.Config,
	logger *zap.Logger,
) *Orchestrator {
	threshold := cfg.Broadcast.SuccessThreshold
	if threshold <= 0 {
		threshold = DefaultSuccessThreshold
	}
	return &Orchestrator{
		device:           device,
		messenger:        messenger,
		speech:           speech,
		composer:         composer,
		renderer:         renderer,
		enricher:         enricher,
		auditor:          auditor,
		config:           cfg,
		logger:           logger,
		successThreshold: threshold,
		sleep:            time.Sleep,
	}
}

// Run executes the full broadcast for one incident and returns the
// aggregated outcome. It always returns a complete outcome covering all
// five stages.
func (o *Orchestrator) Run(ctx context.Context, report *models.IncidentReport) *models.BroadcastOutcome {
	started := time.Now()

	o.logger.Info("Emergency broadcast started",
		zap.String("incident_type", report.IncidentType),
		zap.String("group_id", report.ChatID),
		zap.String("reporter", report.ReporterPhone),
	)

	profile := o.resolveProfile(ctx, report)

	// The alert text is composed on first use, inside a stage, so the slow
	// language-model call never delays the device alarm and a composer
	// panic stays inside runStage's recover. Later stages reuse the text.
	var composeOnce sync.Once
	var alertText string
	alert := func(ctx context.Context) string {
		composeOnce.Do(func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("Alert composition panicked", zap.Any("panic", r))
					alertText = channels.FallbackAlert(report.IncidentType, profile)
				}
			}()
			alertText = o.composer.ComposeAlert(ctx, report.IncidentType, profile)
		})
		return alertText
	}

	outcome := &models.BroadcastOutcome{
		IncidentType:   report.IncidentType,
		ReporterPhone:  report.ReporterPhone,
		ReporterName:   profile.Name,
		GroupID:        report.ChatID,
		GroupName:      profile.GroupName,
		MemberDataUsed: profile.Registered,
		StartedAt:      started,
	}

	stages := []struct {
		name string
		run  func(ctx context.Context) (models.StageOutcome, string)
	}{
		{models.StageDeviceAlarm, func(ctx context.Context) (models.StageOutcome, string) {
			return o.runDeviceAlarm(ctx, report)
		}},
		{models.StageTextBroadcast, func(ctx context.Context) (models.StageOutcome, string) {
			return o.runTextBroadcast(ctx, report.ChatID, alert(ctx))
		}},
		{models.StageImageAlert, func(ctx context.Context) (models.StageOutcome, string) {
			return o.runImageAlert(ctx, report, alert(ctx))
		}},
		{models.StageVoiceAlert, func(ctx context.Context) (models.StageOutcome, string) {
			return o.runVoiceAlert(ctx, report, profile)
		}},
		{models.StageAnimatedAlert, func(ctx context.Context) (models.StageOutcome, string) {
			return o.runAnimatedAlert(ctx, report, alert(ctx))
		}},
	}

	for _, stage := range stages {
		result, detail := o.runStage(ctx, stage.name, stage.run)
		outcome.Stages = append(outcome.Stages, models.StageResult{
			Stage:   stage.name,
			Outcome: result,
			Detail:  detail,
		})
	}

	successes := outcome.Successes()
	outcome.SuccessRate = float64(successes) / float64(models.BroadcastStageCount)
	outcome.Success = successes >= o.successThreshold
	outcome.FinishedAt = time.Now()

	if err := o.auditor.LogEmergencyEvent(ctx, outcome); err != nil {
		o.logger.Error("Failed to audit emergency broadcast", zap.Error(err))
	}

	o.logger.Info("Emergency broadcast finished",
		zap.String("incident_type", report.IncidentType),
		zap.Int("successes", successes),
		zap.Float64("success_rate", outcome.SuccessRate),
		zap.Bool("success", outcome.Success),
		zap.Strings("actions_taken", outcome.ActionsTaken()),
	)
	return outcome
}

// resolveProfile enriches the reporter, degrading to the fallback profile
// if the enricher itself panics. The broadcast must start either way.
func (o *Orchestrator) resolveProfile(ctx context.Context, report *models.IncidentReport) (profile *models.EnrichedProfile) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Profile enrichment panicked", zap.Any("panic", r))
			profile = enrichment.FallbackProfile(report.ReporterPhone, report.GroupName, 1)
		}
	}()
	return o.enricher.Enrich(ctx, report.ReporterPhone, report.ChatID, report.GroupName)
}

// runStage isolates one stage behind a recover so a panicking channel
// cannot abort the remaining stages.
func (o *Orchestrator) runStage(ctx context.Context, name string, run func(ctx context.Context) (models.StageOutcome, string)) (result models.StageOutcome, detail string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Broadcast stage panicked",
				zap.String("stage", name),
				zap.Any("panic", r),
			)
			result = models.StageFailure
			detail = fmt.Sprintf("panic: %v", r)
		}
	}()

	result, detail = run(ctx)

	if result == models.StageSuccess {
		o.logger.Info("Broadcast stage succeeded", zap.String("stage", name))
	} else {
		o.logger.Warn("Broadcast stage did not fully succeed",
			zap.String("stage", name),
			zap.String("outcome", string(result)),
			zap.String("detail", detail),
		)
	}
	return result, detail
}

// runDeviceAlarm blinks the alarm switch. The final forced OFF decides
// between partial and failure when toggles were lost: the device must
// never be left on after a broadcast.
func (o *Orchestrator) runDeviceAlarm(ctx context.Context, report *models.IncidentReport) (models.StageOutcome, string) {
	deviceID := report.DeviceID
	if deviceID == "" {
		return models.StageFailure, "no alarm device configured"
	}

	cycles := report.BlinkCycles
	if cycles <= 0 {
		cycles = o.config.Broadcast.BlinkCycles
	}

	toggleFailures := 0
	for i := 0; i < cycles; i++ {
		if err := o.device.SetState(ctx, deviceID, true); err != nil {
			toggleFailures++
		}
		o.sleep(blinkInterval)
		if err := o.device.SetState(ctx, deviceID, false); err != nil {
			toggleFailures++
		}
		o.sleep(blinkInterval)
	}

	if toggleFailures == 0 {
		return models.StageSuccess, ""
	}

	if err := o.device.SetState(ctx, deviceID, false); err != nil {
		return models.StageFailure, fmt.Sprintf("%d toggles failed and final off failed: %v", toggleFailures, err)
	}
	return models.StagePartial, fmt.Sprintf("%d toggles failed, device forced off", toggleFailures)
}

func (o *Orchestrator) runTextBroadcast(ctx context.Context, chatID, alertText string) (models.StageOutcome, string) {
	if err := o.messenger.SendText(ctx, chatID, alertText); err != nil {
		return models.StageFailure, err.Error()
	}
	return models.StageSuccess, ""
}

func (o *Orchestrator) runImageAlert(ctx context.Context, report *models.IncidentReport, alertText string) (models.StageOutcome, string) {
	imagePath, err := o.renderer.RenderStill(ctx, report.IncidentType, alertText)
	if err != nil {
		return models.StageFailure, err.Error()
	}
	defer os.Remove(imagePath)

	if err := o.messenger.SendImage(ctx, report.ChatID, imagePath, report.IncidentType); err != nil {
		return models.StageFailure, err.Error()
	}
	return models.StageSuccess, ""
}

func (o *Orchestrator) runVoiceAlert(ctx context.Context, report *models.IncidentReport, profile *models.EnrichedProfile) (models.StageOutcome, string) {
	script := report.VoiceScript
	if script == "" {
		script = o.composer.ComposeVoiceScript(ctx, report.IncidentType, profile)
	}

	oggPath, err := o.speech.Synthesize(ctx, script)
	if err != nil {
		return models.StageFailure, err.Error()
	}
	defer os.Remove(oggPath)

	if err := o.messenger.SendVoice(ctx, report.ChatID, oggPath); err != nil {
		return models.StageFailure, err.Error()
	}
	return models.StageSuccess, ""
}

func (o *Orchestrator) runAnimatedAlert(ctx context.Context, report *models.IncidentReport, alertText string) (models.StageOutcome, string) {
	gifPath, err := o.renderer.RenderAnimated(ctx, report.IncidentType, alertText)
	if err != nil {
		return models.StageFailure, err.Error()
	}
	defer os.Remove(gifPath)

	if err := o.messenger.SendGIF(ctx, report.ChatID, gifPath, report.IncidentType); err != nil {
		return models.StageFailure, err.Error()
	}
	return models.StageSuccess, ""
}
