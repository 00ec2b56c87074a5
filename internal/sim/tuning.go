package sim

import (
	"math"
	"time"

	"arena-server/internal/physics"
)

// Tuning holds every gameplay constant of a room. Distances are pixels,
// speeds are pixels per second.
type Tuning struct {
	Physics physics.Options

	// Margin kept between spawned or sampled points and the walls.
	WallMargin float64
	// Bullets farther than this outside the arena are culled.
	BulletMargin float64

	PlayerRadius      float64
	PlayerSpeed       float64
	PlayerMaxHealth   float64
	IdleTimeout       time.Duration
	AutoSpeed         float64
	AutoMinTravel     float64
	AutoMaxTravel     float64
	AutoAttempts      int
	AutoMaxDuration   time.Duration
	ArriveEpsilon     float64
	SyncTolerance     float64
	ShotCooldown      time.Duration
	BulletRadius      float64
	BulletSpeed       float64
	BulletMinSpeed    float64
	BulletMaxSpeed    float64
	BulletPower       float64
	BulletMaxPower    float64
	HitReward         int
	KillReward        int
	LeaderDamageRatio float64

	LeaderSize       float64
	FollowerSize     float64
	LeaderHealth     float64
	FollowerHealth   float64
	LeaderSpeed      float64
	FollowerSpeedMul float64
	MinFollowerCeil  float64
	SteerGain        float64
	StopEpsilon      float64
	TurnLerp         float64
	WaypointEpsilon  float64
	WanderRadius     float64
	WanderSpread     float64
	ObstacleFan      physics.Fan
	AvoidMaxTurn     float64
	AvoidDuration    time.Duration
	DetectAngle      float64
	DetectDistance   float64
	PursuitDuration  time.Duration
	PursuitMaxDist   float64
	EvadeDistance    float64
	EvadeDuration    time.Duration
	EvadeOffset      float64
	ReturnEpsilon    float64
	FormationSpacing float64
	FormationAngle   float64
	ElectionDelay    time.Duration
	RagdollDelay     time.Duration

	CombatFan        physics.Fan
	LeaderFireRange  float64
	LeaderCooldown   time.Duration
	FollowerCooldown time.Duration
	NpcBulletSpeed   float64
	NpcBulletPower   float64
	HeadingEpsilon   float64

	PickupRadius   float64
	PickupHeal     float64
	PickupLifetime time.Duration
	PickupBonus    int
}

func DefaultTuning() Tuning {
	return Tuning{
		Physics:      physics.DefaultOptions(),
		WallMargin:   60,
		BulletMargin: 50,

		PlayerRadius:      20,
		PlayerSpeed:       300,
		PlayerMaxHealth:   100,
		IdleTimeout:       10 * time.Second,
		AutoSpeed:         180,
		AutoMinTravel:     200,
		AutoMaxTravel:     500,
		AutoAttempts:      10,
		AutoMaxDuration:   6 * time.Second,
		ArriveEpsilon:     15,
		SyncTolerance:     80,
		BulletRadius:      5,
		BulletSpeed:       600,
		BulletMinSpeed:    200,
		BulletMaxSpeed:    1200,
		BulletPower:       10,
		BulletMaxPower:    50,
		HitReward:         1,
		KillReward:        10,
		LeaderDamageRatio: 0.5,

		LeaderSize:       28,
		FollowerSize:     18,
		LeaderHealth:     60,
		FollowerHealth:   30,
		LeaderSpeed:      120,
		FollowerSpeedMul: 1.6,
		MinFollowerCeil:  90,
		SteerGain:        3,
		StopEpsilon:      3,
		TurnLerp:         0.15,
		WaypointEpsilon:  25,
		WanderRadius:     320,
		WanderSpread:     math.Pi / 3,
		ObstacleFan:      physics.Fan{Count: 5, HalfAngle: math.Pi / 6, Length: 120},
		AvoidMaxTurn:     math.Pi / 4,
		AvoidDuration:    400 * time.Millisecond,
		DetectAngle:      math.Pi / 4,
		DetectDistance:   400,
		PursuitDuration:  6 * time.Second,
		PursuitMaxDist:   700,
		EvadeDistance:    60,
		EvadeDuration:    600 * time.Millisecond,
		EvadeOffset:      90,
		ReturnEpsilon:    25,
		FormationSpacing: 60,
		FormationAngle:   math.Pi / 5,
		ElectionDelay:    1500 * time.Millisecond,
		RagdollDelay:     800 * time.Millisecond,

		CombatFan:        physics.Fan{Count: 7, HalfAngle: math.Pi / 8, Length: 450},
		LeaderFireRange:  500,
		LeaderCooldown:   1200 * time.Millisecond,
		FollowerCooldown: 1800 * time.Millisecond,
		NpcBulletSpeed:   420,
		NpcBulletPower:   8,
		HeadingEpsilon:   0.5,

		PickupRadius:   12,
		PickupHeal:     25,
		PickupLifetime: 15 * time.Second,
		PickupBonus:    5,
	}
}
