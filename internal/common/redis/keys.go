// internal/common/redis/keys.go
package redis

import (
	"fmt"
	"strings"
)

// Redis Key Patterns Redis 키 패턴 상수
const (
	// 현재 상태 스냅샷 (hash)
	StatePattern = "sphero:state:%s"

	// 최근 전이 목록 (list, 최신이 앞)
	TransitionsPattern = "sphero:transitions:%s"

	// 실행(run) 정보
	RunPattern = "sphero:run:%s"
)

// MaxCachedTransitions 캐시에 보관하는 전이 개수
const MaxCachedTransitions = 100

// KeyGenerator Redis 키 생성기
type KeyGenerator struct{}

// NewKeyGenerator 새 키 생성기 생성
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// State 디바이스 상태 키 생성
func (k *KeyGenerator) State(device string) string {
	return fmt.Sprintf(StatePattern, device)
}

// Transitions 디바이스 전이 목록 키 생성
func (k *KeyGenerator) Transitions(device string) string {
	return fmt.Sprintf(TransitionsPattern, device)
}

// Run 실행 키 생성
func (k *KeyGenerator) Run(runID string) string {
	return fmt.Sprintf(RunPattern, runID)
}

// 전역 키 생성기 인스턴스
var Keys = NewKeyGenerator()

// State 디바이스 상태 키 생성
func State(device string) string {
	return Keys.State(device)
}

// Transitions 디바이스 전이 목록 키 생성
func Transitions(device string) string {
	return Keys.Transitions(device)
}

// Run 실행 키 생성
func Run(runID string) string {
	return Keys.Run(runID)
}

// AllStates 모든 상태 키 패턴
func AllStates() string {
	return "sphero:state:*"
}

// KeyType 키 타입 정의
type KeyType string

const (
	KeyTypeState       KeyType = "state"
	KeyTypeTransitions KeyType = "transitions"
	KeyTypeRun         KeyType = "run"
)

// GetKeyType 키에서 타입 추출
func GetKeyType(key string) KeyType {
	switch {
	case strings.HasPrefix(key, "sphero:state:"):
		return KeyTypeState
	case strings.HasPrefix(key, "sphero:transitions:"):
		return KeyTypeTransitions
	case strings.HasPrefix(key, "sphero:run:"):
		return KeyTypeRun
	default:
		return ""
	}
}
