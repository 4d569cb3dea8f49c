package functional

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/nix-installer/nix-installer/internal/action"
	"github.com/nix-installer/nix-installer/internal/archive"
	"github.com/nix-installer/nix-installer/internal/cure"
	"github.com/nix-installer/nix-installer/internal/executor"
	"github.com/nix-installer/nix-installer/internal/log"
	"github.com/nix-installer/nix-installer/internal/plan"
	"github.com/nix-installer/nix-installer/internal/planner/linux"
	"github.com/nix-installer/nix-installer/internal/receipt"
)

const unitFilePath = "/etc/systemd/system/nix-daemon.service"

// harnessHost bundles the FakeHost every scenario mutates through with the
// two real, on-disk handles the unpack step needs: archive.Extract (called
// from internal/action.UnpackArchiveAction) opens and writes files with the
// os package directly rather than through the Host abstraction.
type harnessHost struct {
	fake        *action.FakeHost
	root        string
	receiptPath string
}

func newHarnessHost(scratchDir string) *harnessHost {
	return &harnessHost{
		fake:        action.NewFakeHost(),
		root:        filepath.Join(scratchDir, "root"),
		receiptPath: filepath.Join(scratchDir, "receipt.json"),
	}
}

func (h *harnessHost) store() *receipt.Store { return receipt.NewStore(h.receiptPath) }

// fixtureArchive builds a one-entry tar.zst at the path the linux planner
// derives for an unversioned target, writing it both to the real
// filesystem (for archive.Extract) and into the FakeHost (for
// VerifyDigestAction, which reads through the Host).
func (h *harnessHost) fixtureArchive() (digestHex string, err error) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	body := []byte("#!/bin/sh\necho nix-daemon\n")
	if err := tw.WriteHeader(&tar.Header{Name: "nix-pkg/bin/nix-daemon", Mode: 0755, Size: int64(len(body))}); err != nil {
		return "", err
	}
	if _, err := tw.Write(body); err != nil {
		return "", err
	}
	if err := tw.Close(); err != nil {
		return "", err
	}

	var zstdBuf bytes.Buffer
	zw, err := zstd.NewWriter(&zstdBuf)
	if err != nil {
		return "", err
	}
	if _, err := zw.Write(tarBuf.Bytes()); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	content := zstdBuf.Bytes()

	scratch := filepath.Join(h.root, ".install-scratch")
	archivePath := filepath.Join(scratch, fmt.Sprintf("target-unknown.%s", archive.TarZst))

	if err := os.MkdirAll(scratch, 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(archivePath, content, 0644); err != nil {
		return "", err
	}
	if err := h.fake.MkdirAll(scratch, 0755); err != nil {
		return "", err
	}
	if err := h.fake.WriteFile(archivePath, content, 0644); err != nil {
		return "", err
	}

	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), nil
}

func aFreshHost(ctx context.Context) error {
	s := getState(ctx)
	s.host = newHarnessHost(s.scratchDir)
	return nil
}

func runInstall(s *scenarioState, init string) error {
	h := s.host
	digestHex, err := h.fixtureArchive()
	if err != nil {
		return err
	}

	settings := plan.Settings{
		Root:        h.root,
		Planner:     "linux",
		Init:        init,
		NoConfirm:   true,
		ReceiptPath: h.receiptPath,
		StartDaemon: init != linux.SupervisorNone,
	}
	target := plan.TargetArchive{OS: "linux", Arch: "amd64", URL: "", DigestHex: digestHex}

	p, err := linux.New().Build(context.Background(), settings, target)
	if err != nil {
		return err
	}
	for _, a := range p.Actions {
		if err := a.TryPlan(context.Background(), h.fake); err != nil {
			return err
		}
	}

	store := h.store()
	verdicts, err := cure.Reconcile(context.Background(), h.fake, store, p)
	if err != nil {
		return err
	}
	for _, v := range verdicts {
		if v.Classification == cure.Conflicting {
			return fmt.Errorf("%s: %s", v.Action.Synopsis(), v.Reason)
		}
	}

	exec := executor.New(h.fake, store, nil, log.NewNoop())
	return exec.Execute(context.Background(), p)
}

func iInstallWithTheLinuxPlanner(ctx context.Context) error {
	s := getState(ctx)
	s.installErr = runInstall(s, linux.SupervisorSystemd)
	return nil
}

func iInstallWithTheLinuxPlannerUsingInit(ctx context.Context, init string) error {
	s := getState(ctx)
	s.installErr = runInstall(s, init)
	return nil
}

func iUninstall(ctx context.Context) error {
	s := getState(ctx)
	exec := executor.New(s.host.fake, s.host.store(), nil, log.NewNoop())
	s.uninstallErr = exec.Uninstall(context.Background())
	return nil
}

func aPriorCleanInstallHasAlreadyCompleted(ctx context.Context) error {
	s := getState(ctx)
	return runInstall(s, linux.SupervisorSystemd)
}

func theReceiptHasBeenMovedAside(ctx context.Context) error {
	s := getState(ctx)
	return s.host.store().Delete()
}

func theRootPathIsARegularFile(ctx context.Context) error {
	s := getState(ctx)
	return s.host.fake.WriteFile(s.host.root, []byte("not a directory"), 0644)
}

func theDaemonIsForcedToFailOnStart(ctx context.Context) error {
	s := getState(ctx)
	s.host.fake.SetServiceStartErr(errors.New("daemon refused to start"))
	return nil
}

func theNixbldUsersHaveBeenDeletedExternally(ctx context.Context) error {
	s := getState(ctx)
	for i := 1; i <= 32; i++ {
		if err := s.host.fake.RemoveUser(fmt.Sprintf("nixbld%d", i)); err != nil {
			return err
		}
	}
	return nil
}

func theInstallSucceeds(ctx context.Context) error {
	s := getState(ctx)
	if s.installErr != nil {
		return fmt.Errorf("expected install to succeed, got: %w", s.installErr)
	}
	return nil
}

func theInstallFails(ctx context.Context) error {
	s := getState(ctx)
	if s.installErr == nil {
		return fmt.Errorf("expected install to fail, it succeeded")
	}
	return nil
}

func theInstallFailsWithAConflictNamingTheRootPath(ctx context.Context) error {
	s := getState(ctx)
	if s.installErr == nil {
		return fmt.Errorf("expected install to fail, it succeeded")
	}
	var tagged *action.TaggedError
	if !errors.As(s.installErr, &tagged) {
		return fmt.Errorf("expected a TaggedError, got %v", s.installErr)
	}
	if tagged.Tag != action.TagPlanConflict && tagged.Tag != action.TagCureConflict {
		return fmt.Errorf("expected a plan or cure conflict, got tag %v", tagged.Tag)
	}
	return nil
}

func nixbldUsersExistWithUids(ctx context.Context, count, uidLow, uidHigh int) error {
	if count != 32 || uidLow != 30001 || uidHigh != 30032 {
		return fmt.Errorf("unexpected uid range in step text: %d %d-%d", count, uidLow, uidHigh)
	}
	return nixbldUsersExistWithUidsDefault(ctx)
}

func nixbldUsersExistWithUidsDefault(ctx context.Context) error {
	s := getState(ctx)
	for i := 1; i <= 32; i++ {
		name := fmt.Sprintf("nixbld%d", i)
		info, err := s.host.fake.LookupUser(name)
		if err != nil {
			return fmt.Errorf("user %s: %w", name, err)
		}
		if info.UID != 30000+i {
			return fmt.Errorf("user %s: expected uid %d, got %d", name, 30000+i, info.UID)
		}
	}
	return nil
}

func noNixbldUsersExist(ctx context.Context) error {
	s := getState(ctx)
	for i := 1; i <= 32; i++ {
		name := fmt.Sprintf("nixbld%d", i)
		if _, err := s.host.fake.LookupUser(name); err == nil {
			return fmt.Errorf("user %s still exists", name)
		}
	}
	return nil
}

func theGroupExistsWithGid(ctx context.Context, name string, gid int) error {
	s := getState(ctx)
	info, err := s.host.fake.LookupGroup(name)
	if err != nil {
		return err
	}
	if info.GID != gid {
		return fmt.Errorf("group %s: expected gid %d, got %d", name, gid, info.GID)
	}
	return nil
}

func theStoreDirectoryExists(ctx context.Context) error {
	s := getState(ctx)
	info, err := s.host.fake.Stat(filepath.Join(s.host.root, "store"))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("store path exists but is not a directory")
	}
	return nil
}

func theSystemdUnitFileExists(ctx context.Context) error {
	s := getState(ctx)
	_, err := s.host.fake.Stat(unitFilePath)
	return err
}

func theSystemdUnitFileDoesNotExist(ctx context.Context) error {
	s := getState(ctx)
	if _, err := s.host.fake.Stat(unitFilePath); err == nil {
		return fmt.Errorf("unit file unexpectedly exists")
	}
	return nil
}

func theDaemonIsActive(ctx context.Context) error {
	s := getState(ctx)
	active, err := s.host.fake.ServiceIsActive(context.Background(), "nix-daemon")
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("expected nix-daemon to be active")
	}
	return nil
}

func theDaemonIsNotActive(ctx context.Context) error {
	s := getState(ctx)
	active, err := s.host.fake.ServiceIsActive(context.Background(), "nix-daemon")
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("expected nix-daemon to be inactive")
	}
	return nil
}

func aReceiptExists(ctx context.Context) error {
	s := getState(ctx)
	if !s.host.store().Exists() {
		return fmt.Errorf("expected a receipt to exist")
	}
	return nil
}

func noReceiptExists(ctx context.Context) error {
	s := getState(ctx)
	if s.host.store().Exists() {
		return fmt.Errorf("expected no receipt to exist")
	}
	return nil
}

func theReceiptRecordsInit(ctx context.Context, init string) error {
	s := getState(ctx)
	p, err := s.host.store().Load()
	if err != nil {
		return err
	}
	if p.Settings.Init != init {
		return fmt.Errorf("expected receipt init %q, got %q", init, p.Settings.Init)
	}
	return nil
}

func theRootDirectoryNoLongerExists(ctx context.Context) error {
	s := getState(ctx)
	if _, err := s.host.fake.Stat(s.host.root); err == nil {
		return fmt.Errorf("root directory still exists")
	}
	return nil
}

func theUninstallReportsRevertFailuresForTheDeletedUsers(ctx context.Context) error {
	s := getState(ctx)
	if s.uninstallErr == nil {
		return fmt.Errorf("expected uninstall to report per-action revert failures")
	}
	var rollback *action.RollbackError
	if !errors.As(s.uninstallErr, &rollback) {
		return fmt.Errorf("expected a RollbackError, got %v", s.uninstallErr)
	}
	if len(rollback.RevertFailures) == 0 {
		return fmt.Errorf("expected at least one revert failure")
	}
	return nil
}
