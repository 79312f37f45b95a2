package episode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCommand_Scenario5(t *testing.T) {
	assert.Equal(t, Test, ClassifyCommand("pytest -v"))
}

func TestClassifyCommand_UnmatchedIsExplore(t *testing.T) {
	assert.Equal(t, Explore, ClassifyCommand("ls -la"))
}

func TestClassifyCommand_Deploy(t *testing.T) {
	assert.Equal(t, Deploy, ClassifyCommand("kubectl apply -f deploy.yaml"))
}

func TestClassifyCommand_Review(t *testing.T) {
	assert.Equal(t, Review, ClassifyCommand("git log --oneline"))
}

func TestClassifyContent_Debug(t *testing.T) {
	text := "Traceback (most recent call last):\n...\nTraceback (most recent call last):"
	assert.Equal(t, Debug, ClassifyContent(text))
}

func TestClassifyContent_BelowFloorIsExplore(t *testing.T) {
	assert.Equal(t, Explore, ClassifyContent("just chatting about the weather"))
}

func TestIsErrorState_Scenario5(t *testing.T) {
	assert.True(t, IsErrorState(0, "Traceback (most recent call last):\nTraceback again"))
}

func TestIsErrorState_NonZeroExitAlwaysErrors(t *testing.T) {
	assert.True(t, IsErrorState(1, "all clean output"))
}

func TestIsErrorState_CleanIsFalse(t *testing.T) {
	assert.False(t, IsErrorState(0, "all good here"))
}
