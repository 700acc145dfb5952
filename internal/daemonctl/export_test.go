package daemonctl

var LaunchArgsForTest = launchArgs
