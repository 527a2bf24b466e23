package coordinator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// shellQuote wraps s in single quotes, escaping any embedded single
// quote the POSIX-shell way: close the quote, emit an escaped quote,
// reopen the quote. Every interpolated value in the user-data template
// goes through this, including the registration token.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// GuestCustomizer carries the pass-through knobs — repo URL, ref,
// workspace dir, and skip flags — forwarded into the guest's bootstrap
// environment unmodified.
type GuestCustomizer struct {
	RepoURL      string
	Ref          string
	WorkspaceDir string
	SkipDeps     bool
}

// userDataParams is everything the template needs; BotConfigJSON and
// RegistrationToken are the two values that make this template
// sensitive to leak through tracing.
type userDataParams struct {
	BotID             uuid.UUID
	RegistrationToken string
	ControlPlaneURL   string
	BotConfigJSON     string
	Customizer        GuestCustomizer
}

// assembleUserData produces the shell script the IaaS injects into the
// VM at boot. Grounded on original_source's generate_user_data, with
// one deliberate divergence: xtrace (set -x) is never enabled, because
// the registration token is embedded in the script and xtrace would
// echo it to the console/serial log. `set -e` is kept so the bootstrap
// aborts loudly on its own failures instead of limping forward.
func assembleUserData(p userDataParams) string {
	var skipDeps string
	if p.Customizer.SkipDeps {
		skipDeps = "true"
	} else {
		skipDeps = "false"
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	b.WriteString("set -e\n")
	b.WriteString("# xtrace intentionally disabled: REGISTRATION_TOKEN below must never reach a trace log.\n\n")

	fmt.Fprintf(&b, "export BOT_ID=%s\n", shellQuote(p.BotID.String()))
	fmt.Fprintf(&b, "export REGISTRATION_TOKEN=%s\n", shellQuote(p.RegistrationToken))
	fmt.Fprintf(&b, "export CONTROL_PLANE_URL=%s\n", shellQuote(p.ControlPlaneURL))
	fmt.Fprintf(&b, "export BOT_CONFIG_JSON=%s\n", shellQuote(p.BotConfigJSON))
	fmt.Fprintf(&b, "export GUEST_REPO_URL=%s\n", shellQuote(p.Customizer.RepoURL))
	fmt.Fprintf(&b, "export GUEST_REF=%s\n", shellQuote(p.Customizer.Ref))
	fmt.Fprintf(&b, "export GUEST_WORKSPACE_DIR=%s\n", shellQuote(p.Customizer.WorkspaceDir))
	fmt.Fprintf(&b, "export GUEST_SKIP_DEPS=%s\n\n", shellQuote(skipDeps))

	b.WriteString(guestBootstrapTemplate)
	return b.String()
}

// guestBootstrapTemplate is the fixed command structure the agent's
// values are interpolated around: install dependencies, write the
// config, register, then loop pull/ack/heartbeat with bounded timeouts.
// Heartbeat failure never terminates the loop.
const guestBootstrapTemplate = `
if [ "$GUEST_SKIP_DEPS" != "true" ]; then
  command -v curl >/dev/null 2>&1 || (apt-get update -qq && apt-get install -y -qq curl jq)
fi

mkdir -p "${GUEST_WORKSPACE_DIR:-/opt/botfleet}"
printf '%s' "$BOT_CONFIG_JSON" > "${GUEST_WORKSPACE_DIR:-/opt/botfleet}/config.json"

curl --fail --connect-timeout 10 --max-time 30 -sS \
  -X POST "$CONTROL_PLANE_URL/bot/register" \
  -H "Authorization: Bearer $REGISTRATION_TOKEN" \
  -H "Content-Type: application/json" \
  -d "{\"bot_id\": \"$BOT_ID\"}" || true

LOCAL_APPLIED_VERSION=""

while true; do
  RESPONSE=$(curl --connect-timeout 10 --max-time 30 -sS \
    -X GET "$CONTROL_PLANE_URL/bot/$BOT_ID/config" \
    -H "Authorization: Bearer $REGISTRATION_TOKEN" || true)

  if [ -n "$RESPONSE" ]; then
    REMOTE_VERSION=$(printf '%s' "$RESPONSE" | jq -r '.data.version // empty' 2>/dev/null || true)
    if [ -n "$REMOTE_VERSION" ] && [ "$REMOTE_VERSION" != "$LOCAL_APPLIED_VERSION" ]; then
      printf '%s' "$RESPONSE" > "${GUEST_WORKSPACE_DIR:-/opt/botfleet}/config.json"
      curl --connect-timeout 10 --max-time 30 -sS \
        -X POST "$CONTROL_PLANE_URL/bot/$BOT_ID/config_ack" \
        -H "Authorization: Bearer $REGISTRATION_TOKEN" \
        -H "Content-Type: application/json" \
        -d "{\"config_id\": \"$(printf '%s' "$RESPONSE" | jq -r '.data.id')\"}" || true
      LOCAL_APPLIED_VERSION="$REMOTE_VERSION"
    fi
  fi

  for _ in 1 2 3 4; do
    curl --connect-timeout 10 --max-time 30 -sS \
      -X POST "$CONTROL_PLANE_URL/bot/$BOT_ID/heartbeat" \
      -H "Authorization: Bearer $REGISTRATION_TOKEN" >/dev/null 2>&1 || true
    sleep 30
  done
done
`
