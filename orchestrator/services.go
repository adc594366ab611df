package orchestrator

import (
	"strings"

	"github.com/longplan-ai/longplan/scheduler"
)

// detectRequestedServices is a naive detector for clinic services mentioned
// in planner text. It backs the Scheduling-phase fallback when the model
// describes bookings without emitting a schedule_services call.
func detectRequestedServices(text string) []string {
	lower := strings.ToLower(text)
	var services []string
	add := func(svc string) {
		for _, s := range services {
			if s == svc {
				return
			}
		}
		services = append(services, svc)
	}
	if strings.Contains(lower, "bloodwork") {
		add(scheduler.ServiceBloodwork)
	}
	if strings.Contains(lower, "vo2") || strings.Contains(lower, "vo₂") {
		add(scheduler.ServiceVO2Test)
	}
	if strings.Contains(lower, "scan") {
		add(scheduler.ServiceScan)
	}
	if strings.Contains(lower, "coach") || strings.Contains(lower, "coaching") {
		add(scheduler.ServiceCoaching)
	}
	return services
}
