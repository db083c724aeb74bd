package version

// DefaultDocument is the built-in landing page shown before the history has
// any committed version.
const DefaultDocument = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Parthib ANYSITE - Build Any Site, Just Vibe Coding</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <link rel="preconnect" href="https://fonts.googleapis.com">
    <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
    <link href="https://fonts.googleapis.com/css2?family=Kanit:wght@400;700&family=Oswald:wght@700&display=swap" rel="stylesheet">
    <style>
        body {
            background-color: #000;
            color: #fff;
            margin: 0;
            padding: 0;
            overflow-x: hidden;
            font-family: 'Kanit', sans-serif;
        }
        .brutal-border {
            border: 8px solid #fff;
        }
        .brutal-box {
            box-shadow: 16px 16px 0 #fff;
        }
        .font-oswald {
            font-family: 'Oswald', sans-serif;
            font-weight: 700;
        }
        .text-huge {
            font-size: clamp(6rem, 20vw, 15rem);
        }
    </style>
</head>
<body>
    <div class="min-h-screen flex items-center justify-center p-4">
        <div class="relative flex flex-col items-center">
            <h1 class="font-oswald text-huge leading-none tracking-tighter text-center select-none z-10">
                ANYSITE
            </h1>
            <div class="relative -mt-8 md:-mt-4 brutal-border p-6 md:p-8 bg-black brutal-box w-full max-w-4xl">
                <div class="flex justify-end items-center mb-6 h-8">
                    <div class="text-xs md:text-sm text-right">Build Any Site.<br>Just Vibe Coding.</div>
                </div>
                <div class="bg-black p-4 border-2 border-white/20">
                    <div class="font-mono text-green-400 text-base md:text-lg">
                        <p class="mb-2">&gt; whoami</p>
                        <p class="mb-2">Parthib Anysite helps you build websites by simply describing what you want to create, powered by state-of-the-art open-source LLMs, complete with version control and auto-deploy with shareable links.</p>
                    </div>
                </div>
            </div>
        </div>
    </div>
</body>
</html>`
