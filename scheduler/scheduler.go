// Package scheduler provides the deterministic clinic slot pool used to book
// appointments. Slot generation is fully determined by its seed and base day:
// six months of three slots each, with the service catalogue cycling
// round-robin across the sequence.
package scheduler

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Service types offered by the clinic.
const (
	ServiceBloodwork = "baseline_bloodwork"
	ServiceVO2Test   = "vo2_test"
	ServiceScan      = "scan"
	ServiceCoaching  = "lifestyle_coaching"
)

// isoLayout renders UTC timestamps as "2006-01-02T15:04:05Z".
const isoLayout = "2006-01-02T15:04:05Z"

type (
	// Slot is a pre-generated one-hour time window for a specific service.
	Slot struct {
		ServiceType string  `json:"service_type"`
		StartISO    string  `json:"start_iso"`
		EndISO      string  `json:"end_iso"`
		StaffRole   string  `json:"staff_role"`
		Location    string  `json:"location"`
		Price       float64 `json:"price"`
		Booked      bool    `json:"booked"`
	}

	// Appointment is a booked slot with a stable booking identifier.
	Appointment struct {
		ServiceType string  `json:"service_type"`
		StartISO    string  `json:"start_iso"`
		EndISO      string  `json:"end_iso"`
		StaffRole   string  `json:"staff_role"`
		Location    string  `json:"location"`
		Price       float64 `json:"price"`
		BookingID   string  `json:"booking_id"`
	}

	service struct {
		name  string
		staff string
		price float64
	}
)

var catalogue = []service{
	{ServiceBloodwork, "lab tech", 120.0},
	{ServiceVO2Test, "coach", 150.0},
	{ServiceScan, "nurse", 300.0},
	{ServiceCoaching, "coach", 80.0},
}

// GenerateSlots builds the deterministic slot pool anchored at today 09:00 UTC.
func GenerateSlots(seed int64) []*Slot {
	now := time.Now().UTC()
	base := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, time.UTC)
	return GenerateSlotsFrom(base, seed)
}

// GenerateSlotsFrom builds the pool from an explicit base timestamp. Two calls
// with identical base and seed yield byte-identical pools.
func GenerateSlotsFrom(base time.Time, _ int64) []*Slot {
	slots := make([]*Slot, 0, 6*3)
	idx := 0
	for m := 0; m < 6; m++ {
		shifted := base.AddDate(0, 0, 30*m)
		for i := 0; i < 3; i++ {
			day := 3 + 7*i
			if day > 28 {
				day = 28
			}
			start := time.Date(shifted.Year(), shifted.Month(), day,
				base.Hour(), base.Minute(), 0, 0, time.UTC)
			end := start.Add(time.Hour)
			svc := catalogue[idx%len(catalogue)]
			slots = append(slots, &Slot{
				ServiceType: svc.name,
				StartISO:    start.Format(isoLayout),
				EndISO:      end.Format(isoLayout),
				StaffRole:   svc.staff,
				Location:    "Main Clinic",
				Price:       svc.price,
			})
			idx++
		}
	}
	return slots
}

// FindAvailableSlots filters the pool to unbooked slots of the requested
// service whose start date (YYYY-MM-DD) is not blacked out.
func FindAvailableSlots(pool []*Slot, serviceType string, blackoutDates []string) []*Slot {
	blk := make(map[string]struct{}, len(blackoutDates))
	for _, d := range blackoutDates {
		blk[d] = struct{}{}
	}
	var out []*Slot
	for _, s := range pool {
		if s.Booked || s.ServiceType != serviceType {
			continue
		}
		if len(s.StartISO) >= 10 {
			if _, blocked := blk[s.StartISO[:10]]; blocked {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// BookSlot marks the first matching unbooked slot as booked and materializes
// an Appointment with a stable booking id. When persistPath is non-empty the
// appointment is appended to the JSON array at that path; persistence is
// best-effort and a write failure does not roll back the booking. Returns nil
// when no slot is available.
func BookSlot(pool []*Slot, serviceType, userID, persistPath string) (*Appointment, error) {
	for _, s := range pool {
		if s.Booked || s.ServiceType != serviceType {
			continue
		}
		s.Booked = true
		appt := &Appointment{
			ServiceType: s.ServiceType,
			StartISO:    s.StartISO,
			EndISO:      s.EndISO,
			StaffRole:   s.StaffRole,
			Location:    s.Location,
			Price:       s.Price,
			BookingID:   BookingID(userID, s.StartISO, s.ServiceType),
		}
		if persistPath != "" {
			if err := persistBooking(persistPath, appt); err != nil {
				return appt, fmt.Errorf("persist booking %s: %w", appt.BookingID, err)
			}
		}
		return appt, nil
	}
	return nil, nil
}

// BookingID derives the stable id: the first 10 hex characters of the SHA-1
// of "{user_id}-{start_iso}-{service_type}".
func BookingID(userID, startISO, serviceType string) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s-%s-%s", userID, startISO, serviceType)))
	return hex.EncodeToString(sum[:])[:10]
}

// persistBooking appends the appointment to the JSON array at path via
// read-modify-write. A malformed existing file is treated as empty.
func persistBooking(path string, appt *Appointment) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var existing []*Appointment
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &existing); err != nil {
			existing = nil
		}
	}
	existing = append(existing, appt)
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
